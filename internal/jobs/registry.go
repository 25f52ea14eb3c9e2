package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/travelgallery/internal/util"
)

// Listener receives every state published for a job. It is called
// synchronously from the publishing goroutine and must not block.
type Listener func(State)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	fn Listener
}

type entry struct {
	state State
	subs  []*Subscription
}

// Registry is the process-wide store of ingestion job state. All methods are
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry that evicts finished jobs older than ttl
// when Sweep runs. ttl <= 0 disables eviction.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create allocates a fresh id and stores the initial state
// (default progress 0, status queued).
func (r *Registry) Create(initial *State) string {
	id := util.NewID()
	st := State{ID: id, Status: StatusQueued}
	if initial != nil {
		st.Progress = clamp(initial.Progress)
		st.Message = initial.Message
		if initial.Status != "" {
			st.Status = initial.Status
		}
	}
	st.UpdatedAt = r.now()

	r.mu.Lock()
	r.entries[id] = &entry{state: st}
	r.mu.Unlock()
	return id
}

// Get returns a snapshot of the job state.
func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// SetProgress clamps progress to [0,1], derives the status (done iff
// progress >= 1, processing otherwise), replaces the message when non-empty
// and publishes the result. Unknown ids are ignored.
func (r *Registry) SetProgress(id string, progress float64, message string) {
	r.update(id, func(st *State) {
		st.Progress = clamp(progress)
		if st.Progress >= 1 {
			st.Status = StatusDone
		} else {
			st.Status = StatusProcessing
		}
		if message != "" {
			st.Message = message
		}
	})
}

// Fail marks the job as errored without touching its progress and publishes
// the result. Unknown ids are ignored.
func (r *Registry) Fail(id string, message string) {
	r.update(id, func(st *State) {
		st.Status = StatusError
		st.Message = message
	})
}

func (r *Registry) update(id string, mutate func(*State)) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	mutate(&e.state)
	e.state.UpdatedAt = r.now()
	st := e.state
	subs := make([]*Subscription, len(e.subs))
	copy(subs, e.subs)
	r.mu.Unlock()

	// Listeners run outside the lock so they may call back into the registry.
	for _, s := range subs {
		s.fn(st)
	}
}

// Subscribe registers l for future publishes of id and returns the current
// snapshot taken atomically with the registration, so no update between
// subscribing and reading can be missed. ok is false for unknown ids.
func (r *Registry) Subscribe(id string, l Listener) (sub *Subscription, snapshot State, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.entries[id]
	if !exists {
		return nil, State{}, false
	}
	sub = &Subscription{fn: l}
	e.subs = append(e.subs, sub)
	return sub, e.state, true
}

// Unsubscribe removes a subscription. It is a no-op when either the job or
// the subscription is gone.
func (r *Registry) Unsubscribe(id string, sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	kept := e.subs[:0]
	for _, s := range e.subs {
		if s != sub {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(e.subs); i++ {
		e.subs[i] = nil
	}
	e.subs = kept
}

// Delete removes the job entry.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Subscribers returns the number of live subscriptions for id.
func (r *Registry) Subscribers(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return len(e.subs)
	}
	return 0
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep evicts finished jobs whose last update is older than the TTL and
// returns how many were removed. Jobs still in flight are never evicted.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.entries {
		if e.state.Terminal() && now.Sub(e.state.UpdatedAt) > r.ttl {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 || r.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 && log != nil {
				log.Debug("evicted finished jobs", "count", n, "remaining", r.Len())
			}
		}
	}
}

func clamp(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
