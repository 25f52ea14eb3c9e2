package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/jobs"
	"github.com/jo-hoe/travelgallery/internal/model"
)

type callbackPayload struct {
	JobID     string   `json:"job_id"`
	TripID    string   `json:"trip_id"`
	Status    string   `json:"status"` // completed|failed
	Requested int      `json:"requested"`
	Created   int      `json:"created"`
	PhotoIDs  []string `json:"photo_ids,omitempty"`
	Error     *string  `json:"error,omitempty"`
}

func (p *Pipeline) notify(ctx context.Context, b jobs.Batch, photos []*model.Photo, procErr error) {
	if b.CallbackURL == nil || *b.CallbackURL == "" {
		return
	}
	payload := callbackPayload{
		JobID:     b.JobID,
		TripID:    b.TripID,
		Status:    common.StatusCompleted,
		Requested: len(b.Files),
		Created:   len(photos),
	}
	for _, ph := range photos {
		payload.PhotoIDs = append(payload.PhotoIDs, ph.ID)
	}
	if procErr != nil {
		msg := procErr.Error()
		payload.Status = common.StatusFailed
		payload.Error = &msg
	}
	if err := p.sendCallbackWithRetry(ctx, *b.CallbackURL, payload); err != nil {
		p.Log.Warn("callback failed after retries", "job_id", b.JobID, "err", err)
	}
}

func (p *Pipeline) sendCallbackWithRetry(ctx context.Context, url string, payload callbackPayload) error {
	max := p.Cfg.Server.CallbackRetries
	if max <= 0 {
		max = 3
	}
	backoff := p.Cfg.Server.CallbackBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		err := p.postJSON(ctx, url, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return err
		}
		if attempt == max {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}
	return lastErr
}

func (p *Pipeline) postJSON(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)

	client := p.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}
