package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey       = "X-API-Key" // #nosec G101 - header name constant, not a credential
	ContentTypeJSON    = "application/json"
	ContentTypeSSE     = "text/event-stream"
	HeaderCacheControl = "Cache-Control"
)

// API paths
const (
	PathHealthz = "/healthz"
	PathMetrics = "/metrics"
	PathTrips   = "/v1/trips"
	PathPhotos  = "/v1/photos"
	PathJobs    = "/v1/jobs"
	PathRoutes  = "/v1/routes"
	PathStops   = "/v1/stops"
)

// Multipart form field names for batch uploads
const (
	FormFieldFiles       = "files"
	FormFieldMetadata    = "metadata"
	FormFieldCallbackURL = "callback_url"
)

// Defaults and limits
const (
	DefaultQueueCapacity = 128
	DefaultWorkerCount   = 4
	SQLiteBusyTimeoutMS  = 5000
	DefaultStreamBuffer  = 64
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// Directions providers
const (
	ProviderOpenRoute = "openroute"
	ProviderMock      = "mock"
)

// MIME types
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
	MimeImageJPG  = "image/jpg"
	MimeImageGIF  = "image/gif"
)

// Subdirectory names
const (
	UploadsDirName    = "uploads"
	PhotosDirName     = "photos"
	ThumbnailsDirName = "thumbnails"
)

// Callback status strings
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Progress messages published by the ingestion pipeline
const (
	ProgressMessageProcessing = "processing"
	ProgressMessageCompleted  = "completed"
)
