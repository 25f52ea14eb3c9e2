package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantsValues(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeJSON)
	assert.Equal(t, "text/event-stream", ContentTypeSSE)
	assert.Equal(t, "X-API-Key", HeaderAPIKey)
	assert.Equal(t, "/healthz", PathHealthz)
	assert.Equal(t, "/v1/jobs", PathJobs)

	assert.Positive(t, DefaultQueueCapacity)
	assert.Positive(t, DefaultWorkerCount)
	assert.Positive(t, DefaultStreamBuffer)
	assert.NotEqual(t, DriverSQLite, DriverPgx)

	assert.Equal(t, "image/png", MimeImagePNG)
	assert.Equal(t, "image/jpeg", MimeImageJPEG)
	assert.Equal(t, "image/jpg", MimeImageJPG)

	assert.NotEmpty(t, UploadsDirName)
	assert.NotEmpty(t, PhotosDirName)
	assert.NotEmpty(t, ThumbnailsDirName)
	assert.NotEqual(t, StatusCompleted, StatusFailed)
}
