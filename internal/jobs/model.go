package jobs

import (
	"time"
)

// Status represents the lifecycle stage of an ingestion job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// State is a snapshot of one job as published to subscribers.
type State struct {
	ID        string    `json:"id"`
	Progress  float64   `json:"progress"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether no further updates are expected.
func (s State) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// UploadedFile is one spooled upload waiting for ingestion.
type UploadedFile struct {
	Path         string // temporary file on disk
	OriginalName string // client-supplied filename
	MimeType     string
	Size         int64
}

// PhotoMetadata is the caller-supplied metadata for one uploaded file.
// Non-nil GPS/timestamp fields override values extracted from EXIF.
type PhotoMetadata struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Altitude    *float64   `json:"altitude,omitempty"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
}

// Batch describes one accepted upload request.
type Batch struct {
	JobID       string
	TripID      string
	Files       []UploadedFile
	Metadata    []PhotoMetadata
	CallbackURL *string // optional completion callback
	CreatedAt   time.Time
}
