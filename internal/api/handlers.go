package api

import (
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cbf-labs/anacase/internal/counting"
	"github.com/cbf-labs/anacase/internal/db"
	"github.com/cbf-labs/anacase/internal/httputil"
	"github.com/cbf-labs/anacase/internal/overlay"
	"github.com/cbf-labs/anacase/internal/vision"
)

const maxEventsLimit = 1000

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Snapshot(s.clock.Now()))
}

func (s *Server) acknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	ok := s.engine.Acknowledge(s.clock.Now())
	httputil.WriteJSONOK(w, map[string]bool{"acknowledged": ok})
}

func (s *Server) resetCounter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	now := s.clock.Now()
	s.engine.Reset(now)
	httputil.WriteJSONOK(w, s.engine.Snapshot(now))
}

type modeRequest struct {
	Mode counting.Mode `json:"mode"`
}

// setMode accepts {"mode":"VIEW"} or a "mode" form value.
func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req modeRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	} else {
		req.Mode = counting.Mode(r.FormValue("mode"))
	}
	req.Mode = counting.Mode(strings.ToUpper(string(req.Mode)))

	if err := s.engine.SetMode(req.Mode); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, req)
}

func (s *Server) toggleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"stats_page": s.engine.ToggleStats()})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.ServiceUnavailable(w, "Audit journal not configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxEventsLimit {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	kind := counting.EventKind(r.URL.Query().Get("kind"))

	events, err := s.journal.RecentEvents(limit, kind)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	if events == nil {
		events = []db.EventRecord{}
	}
	httputil.WriteJSONOK(w, events)
}

// streamEvents relays engine events as server-sent events until the client
// goes away or the engine shuts down.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "Streaming unsupported")
		return
	}

	id, events := s.engine.Subscribe()
	defer s.engine.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(s.streamPing)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}

// showOverlay renders the operator display. While a review is open the
// frozen frame of the sampled object is shown instead of the live one.
func (s *Server) showOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.engine.Snapshot(s.clock.Now())
	beam := s.engine.Beam()

	var img *image.RGBA
	if snap.AlarmActive {
		s.engine.WithFrozenSnapshot(func(v any) {
			if frame, ok := v.(*vision.FrameImage); ok {
				img = s.renderer.Render(snap, beam, frame.Img)
			}
		})
	}
	if img == nil && s.frames != nil && snap.Mode == counting.ModeView {
		s.frames.WithLiveFrame(func(frame image.Image) {
			img = s.renderer.Render(snap, beam, frame)
		})
	}
	if img == nil {
		img = s.renderer.Render(snap, beam, nil)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := overlay.EncodePNG(w, img); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to encode overlay: %v", err))
	}
}
