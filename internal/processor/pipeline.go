package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/config"
	"github.com/jo-hoe/travelgallery/internal/jobs"
	"github.com/jo-hoe/travelgallery/internal/media"
	"github.com/jo-hoe/travelgallery/internal/metrics"
	"github.com/jo-hoe/travelgallery/internal/model"
	"github.com/jo-hoe/travelgallery/internal/store"
	"github.com/jo-hoe/travelgallery/internal/util"
)

var ErrLengthMismatch = errors.New("files and metadata length mismatch")

// Geocoder is the soft-failing reverse geocoder the pipeline enriches with.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) *model.LocationInfo
	BulkReverseGeocode(ctx context.Context, coords []model.Coordinates) []*model.LocationInfo
}

// PhotoFiles stores and removes the derived image files.
type PhotoFiles interface {
	SavePhoto(image, thumbnail []byte) (string, error)
	RemovePhoto(filename, thumbnailName string) error
}

// Pipeline ingests upload batches and implements jobs.Processor.
type Pipeline struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Store    store.Store
	Geocoder Geocoder
	Files    PhotoFiles
	Registry *jobs.Registry
	Metrics  *metrics.Metrics

	httpClient *http.Client
}

var _ jobs.Processor = (*Pipeline)(nil)

func New(log *slog.Logger, cfg *config.Config, st store.Store, geo Geocoder, files PhotoFiles, reg *jobs.Registry, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		Log:        log,
		Cfg:        cfg,
		Store:      st,
		Geocoder:   geo,
		Files:      files,
		Registry:   reg,
		Metrics:    m,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Process runs one queued batch. Pre-loop failures mark the job as errored;
// the completion callback is sent either way when one was requested.
func (p *Pipeline) Process(ctx context.Context, item jobs.WorkItem) error {
	b := item.Batch
	photos, err := p.UploadPhotos(ctx, b.Files, b.TripID, b.Metadata, b.JobID)
	if err != nil {
		p.Registry.Fail(b.JobID, err.Error())
		p.notify(ctx, b, nil, err)
		return err
	}
	p.notify(ctx, b, photos, nil)
	return nil
}

// UploadPhotos ingests files in order. Per-file failures are logged and
// skipped; the returned slice holds only the photos that were persisted.
// Progress is published after every file and once more on completion.
func (p *Pipeline) UploadPhotos(ctx context.Context, files []jobs.UploadedFile, tripID string, metadata []jobs.PhotoMetadata, jobID string) ([]*model.Photo, error) {
	if len(files) != len(metadata) {
		return nil, fmt.Errorf("%w: %d files, %d metadata entries", ErrLengthMismatch, len(files), len(metadata))
	}
	if _, err := p.Store.GetTrip(ctx, tripID); err != nil {
		return nil, fmt.Errorf("load trip %s: %w", tripID, err)
	}

	log := p.Log.With("job_id", jobID, "trip_id", tripID)
	n := len(files)
	out := make([]*model.Photo, 0, n)
	var total uint64
	for i, f := range files {
		photo, err := p.ingest(ctx, log, tripID, f, metadata[i])
		if err != nil {
			p.Metrics.PhotoIngested(metrics.ResultError)
			log.Warn("skipping file", "index", i, "file", f.OriginalName, "err", err)
		} else {
			p.Metrics.PhotoIngested(metrics.ResultOK)
			total += uint64(f.Size)
			out = append(out, photo)
		}
		p.Registry.SetProgress(jobID, float64(i+1)/float64(n), common.ProgressMessageProcessing)
	}
	p.Registry.SetProgress(jobID, 1, common.ProgressMessageCompleted)

	log.Info("batch ingested", "photos", len(out), "files", n, "uploaded", humanize.Bytes(total))
	return out, nil
}

func (p *Pipeline) ingest(ctx context.Context, log *slog.Logger, tripID string, f jobs.UploadedFile, md jobs.PhotoMetadata) (*model.Photo, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	extracted, err := media.ExtractMetadata(data)
	if err != nil {
		log.Debug("no usable exif", "file", f.OriginalName, "err", err)
	}

	processed, err := media.Process(data, media.Options{
		MaxWidth:      p.Cfg.Images.MaxWidth,
		ThumbnailSize: p.Cfg.Images.ThumbnailSize,
		JPEGQuality:   p.Cfg.Images.JPEGQuality,
	})
	if err != nil {
		return nil, err
	}
	name, err := p.Files.SavePhoto(processed.Image, processed.Thumbnail)
	if err != nil {
		return nil, err
	}

	photo := &model.Photo{
		ID:               util.NewID(),
		TripID:           tripID,
		Filename:         name,
		ThumbnailName:    name,
		OriginalFilename: f.OriginalName,
		Title:            md.Title,
		Description:      md.Description,
		Camera:           extracted.Camera,
		Width:            processed.Width,
		Height:           processed.Height,
		FileSize:         int64(len(processed.Image)),
		MimeType:         processed.MimeType,
	}
	resolvePosition(photo, md, extracted)

	if c, ok := photo.Coordinates(); ok {
		photo.ApplyLocation(p.Geocoder.ReverseGeocode(ctx, c.Latitude, c.Longitude))
	}

	if err := p.Store.CreatePhoto(ctx, photo); err != nil {
		if rmErr := p.Files.RemovePhoto(name, name); rmErr != nil {
			log.Warn("remove orphaned photo files", "file", name, "err", rmErr)
		}
		return nil, fmt.Errorf("persist photo: %w", err)
	}
	log.Debug("photo ingested", "photo_id", photo.ID, "file", f.OriginalName,
		"size", humanize.Bytes(uint64(f.Size)), "stored", humanize.Bytes(uint64(photo.FileSize)))
	return photo, nil
}

// resolvePosition applies caller metadata over EXIF values. Latitude and
// longitude are taken as a pair so a point is never assembled from two sources.
func resolvePosition(photo *model.Photo, md jobs.PhotoMetadata, ex media.Metadata) {
	switch {
	case md.Latitude != nil && md.Longitude != nil:
		photo.Latitude, photo.Longitude = md.Latitude, md.Longitude
	case ex.Latitude != nil && ex.Longitude != nil:
		photo.Latitude, photo.Longitude = ex.Latitude, ex.Longitude
	}
	photo.Altitude = firstNonNil(md.Altitude, ex.Altitude)
	photo.TakenAt = firstNonNil(md.TakenAt, ex.TakenAt)
}

func firstNonNil[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// DeletePhoto removes the row and then its files.
func (p *Pipeline) DeletePhoto(ctx context.Context, id string) error {
	photo, err := p.Store.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	if err := p.Store.DeletePhoto(ctx, id); err != nil {
		return err
	}
	if err := p.Files.RemovePhoto(photo.Filename, photo.ThumbnailName); err != nil {
		p.Log.Warn("remove photo files", "photo_id", id, "err", err)
	}
	return nil
}

// EnrichTrip geocodes photos of a trip that have coordinates but no location
// yet and returns how many were updated.
func (p *Pipeline) EnrichTrip(ctx context.Context, tripID string) (int, error) {
	if _, err := p.Store.GetTrip(ctx, tripID); err != nil {
		return 0, err
	}
	photos, err := p.Store.ListPhotosByTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}
	var ids []string
	var coords []model.Coordinates
	for _, ph := range photos {
		if c, ok := ph.Coordinates(); ok && !ph.HasLocation() {
			ids = append(ids, ph.ID)
			coords = append(coords, c)
		}
	}
	if len(coords) == 0 {
		return 0, nil
	}

	updated := 0
	for i, info := range p.Geocoder.BulkReverseGeocode(ctx, coords) {
		if info == nil {
			continue
		}
		var e model.Enrichment
		e.ApplyLocation(info)
		if _, err := p.Store.UpdatePhotoLocation(ctx, ids[i], e); err != nil {
			return updated, fmt.Errorf("update photo %s: %w", ids[i], err)
		}
		updated++
	}
	p.Log.Info("trip enriched", "trip_id", tripID, "candidates", len(coords), "updated", updated)
	return updated, nil
}
