package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrThrottleClosed = errors.New("throttle closed")

// Throttle enforces a minimum delay between the starts of consecutive calls.
// A single goroutine hands out permits in arrival order, so the check and
// the timestamp update can never interleave between callers.
type Throttle struct {
	minDelay  time.Duration
	requests  chan permitRequest
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

type permitRequest struct {
	ctx   context.Context
	grant chan error
}

// NewThrottle starts the permit goroutine. minDelay <= 0 grants immediately.
func NewThrottle(minDelay time.Duration) *Throttle {
	t := &Throttle{
		minDelay: minDelay,
		requests: make(chan permitRequest),
		done:     make(chan struct{}),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	go t.run()
	return t
}

func (t *Throttle) run() {
	var last time.Time
	for {
		select {
		case <-t.done:
			return
		case req := <-t.requests:
			if err := req.ctx.Err(); err != nil {
				req.grant <- err
				continue
			}
			if !last.IsZero() {
				if wait := t.minDelay - t.now().Sub(last); wait > 0 {
					if err := t.sleep(req.ctx, wait); err != nil {
						// The caller gave up; the slot stays free for the next one.
						req.grant <- err
						continue
					}
				}
			}
			last = t.now()
			req.grant <- nil
		}
	}
}

// Wait blocks until the caller may start its call.
func (t *Throttle) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return ErrThrottleClosed
	default:
	}
	req := permitRequest{ctx: ctx, grant: make(chan error, 1)}
	select {
	case t.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrThrottleClosed
	}
	select {
	case err := <-req.grant:
		return err
	case <-t.done:
		return ErrThrottleClosed
	}
}

// Close stops the permit goroutine.
func (t *Throttle) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
