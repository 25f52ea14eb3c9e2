package server

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/jobs"
	"github.com/jo-hoe/travelgallery/internal/model"
	"github.com/jo-hoe/travelgallery/internal/util"
)

type createTripRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

func (svc *Service) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := decodeJSON(r, &req); err != nil {
		svc.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		svc.writeError(w, r, badRequest("title is required"))
		return
	}
	trip := &model.Trip{ID: util.NewID(), Title: req.Title, Description: req.Description}
	if err := svc.Store.CreateTrip(r.Context(), trip); err != nil {
		svc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (svc *Service) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("id")
	if _, err := svc.Store.GetTrip(r.Context(), tripID); err != nil {
		svc.writeError(w, r, err)
		return
	}
	photos, err := svc.Store.ListPhotosByTrip(r.Context(), tripID)
	if err != nil {
		svc.writeError(w, r, err)
		return
	}
	if photos == nil {
		photos = []model.Photo{}
	}
	writeJSON(w, http.StatusOK, photos)
}

type uploadResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
	SocketURL string `json:"ws_url"`
}

// handleUploadPhotos spools the batch, registers a job and hands the batch to
// the queue. The response carries only the job id; results arrive on the
// job's progress stream.
func (svc *Service) handleUploadPhotos(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("id")
	if _, err := svc.Store.GetTrip(r.Context(), tripID); err != nil {
		svc.writeError(w, r, err)
		return
	}

	maxUpload := safeInt64(svc.Cfg.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[common.FormFieldFiles]
	if len(headers) == 0 {
		http.Error(w, "files are required", http.StatusBadRequest)
		return
	}
	metadata, err := parseMetadata(r.FormValue(common.FormFieldMetadata), len(headers))
	if err != nil {
		http.Error(w, "invalid metadata json", http.StatusBadRequest)
		return
	}
	callbackURL, err := parseOptionalURL(r.FormValue(common.FormFieldCallbackURL))
	if err != nil {
		http.Error(w, "invalid callback_url", http.StatusBadRequest)
		return
	}

	files, cleanup, err := svc.spool(headers, maxUpload)
	if err != nil {
		http.Error(w, "upload failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	jobID := svc.Registry.Create(nil)
	err = svc.Queue.Enqueue(jobs.WorkItem{
		Batch: jobs.Batch{
			JobID:       jobID,
			TripID:      tripID,
			Files:       files,
			Metadata:    metadata,
			CallbackURL: callbackURL,
			CreatedAt:   time.Now().UTC(),
		},
		Cleanup: cleanup,
	})
	if err != nil {
		_ = cleanup()
		svc.Registry.Delete(jobID)
		if errors.Is(err, jobs.ErrQueueFull) {
			http.Error(w, "queue full, try later", http.StatusServiceUnavailable)
			return
		}
		svc.writeError(w, r, err)
		return
	}
	svc.Log.Info("batch accepted", "job_id", jobID, "trip_id", tripID, "files", len(files))

	jobPath := path.Join(common.PathJobs, jobID)
	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:     jobID,
		StatusURL: jobPath,
		EventsURL: jobPath + "/events",
		SocketURL: jobPath + "/ws",
	})
}

// spool stores every upload of the batch and returns one cleanup for all of
// them. Nothing is left on disk when an error is returned.
func (svc *Service) spool(headers []*multipart.FileHeader, maxBytes int64) ([]jobs.UploadedFile, func() error, error) {
	files := make([]jobs.UploadedFile, 0, len(headers))
	cleanups := make([]func() error, 0, len(headers))
	cleanupAll := func() error {
		var errs []error
		for _, c := range cleanups {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	for _, fh := range headers {
		f, cleanup, err := svc.Uploader.SaveMultipartImage(fh, maxBytes)
		if err != nil {
			_ = cleanupAll()
			return nil, nil, err
		}
		files = append(files, f)
		cleanups = append(cleanups, cleanup)
	}
	return files, cleanupAll, nil
}

// parseMetadata reads the JSON array of per-file metadata. An absent value
// means no metadata for any file. A present array is passed on as is, so a
// length mismatch surfaces as a failed job.
func parseMetadata(raw string, n int) ([]jobs.PhotoMetadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return make([]jobs.PhotoMetadata, n), nil
	}
	var md []jobs.PhotoMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, err
	}
	return md, nil
}

func (svc *Service) handleEnrichTrip(w http.ResponseWriter, r *http.Request) {
	n, err := svc.Pipeline.EnrichTrip(r.Context(), r.PathValue("id"))
	if err != nil {
		svc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (svc *Service) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := svc.Pipeline.DeletePhoto(r.Context(), r.PathValue("id")); err != nil {
		svc.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
