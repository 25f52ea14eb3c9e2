package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/jobs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsWriteWait = 10 * time.Second

func (svc *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	st, ok := svc.Registry.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// jobStream adapts registry listeners to a channel. When the reader falls
// behind the oldest pending state is dropped; the newest one always survives.
type jobStream struct {
	id  string
	reg *jobs.Registry
	sub *jobs.Subscription
	ch  chan jobs.State
}

func (svc *Service) openJobStream(id string) (*jobStream, jobs.State, bool) {
	s := &jobStream{id: id, reg: svc.Registry, ch: make(chan jobs.State, common.DefaultStreamBuffer)}
	sub, snapshot, ok := svc.Registry.Subscribe(id, s.push)
	if !ok {
		return nil, jobs.State{}, false
	}
	s.sub = sub
	return s, snapshot, true
}

func (s *jobStream) push(st jobs.State) {
	for {
		select {
		case s.ch <- st:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *jobStream) close() {
	s.reg.Unsubscribe(s.id, s.sub)
}

// handleJobEvents streams job states as server-sent events, starting with the
// current snapshot, until the job finishes or the client goes away.
func (svc *Service) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	stream, snapshot, ok := svc.openJobStream(r.PathValue("id"))
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	defer stream.close()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", common.ContentTypeSSE)
	h.Set(common.HeaderCacheControl, "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(st jobs.State) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(snapshot); err != nil || snapshot.Terminal() {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case st := <-stream.ch:
			if err := send(st); err != nil {
				svc.Log.Debug("event stream write failed", "job_id", st.ID, "err", err)
				return
			}
			if st.Terminal() {
				return
			}
		}
	}
}

// handleJobWebSocket pushes the same states as JSON text frames and closes
// the socket normally once the job is finished.
func (svc *Service) handleJobWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := svc.Registry.Get(id); !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		svc.Log.Warn("websocket upgrade failed", "job_id", id, "err", err)
		return
	}
	defer conn.Close()

	stream, snapshot, ok := svc.openJobStream(id)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job not found"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer stream.close()

	// Client frames are ignored; reading detects the disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(st jobs.State) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(st)
	}

	st := snapshot
	for {
		if err := send(st); err != nil {
			svc.Log.Debug("websocket write failed", "job_id", id, "err", err)
			return
		}
		if st.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(st.Status)),
				time.Now().Add(wsWriteWait))
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case st = <-stream.ch:
		}
	}
}
