package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/Eigensu/SM-Visitor/internal/http/middleware"
	"github.com/Eigensu/SM-Visitor/internal/http/response"
	"github.com/Eigensu/SM-Visitor/internal/sse"
	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

// EventsHandler serves the long-lived SSE stream. Owners receive approval
// requests and entry notifications for their flat; guards receive
// decision events for visits they created.
type EventsHandler struct {
	hub       *sse.Hub
	heartbeat time.Duration
}

func NewEventsHandler(hub *sse.Hub, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventsHandler{hub: hub, heartbeat: heartbeat}
}

func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stream", h.Stream)
	return r
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p, ok := mw.PrincipalFrom(r)
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, "streaming not supported")
		return
	}

	sub := h.hub.Subscribe(p.ID, string(p.Role))
	// Unconditional cleanup: whatever path ends this handler, the
	// subscription must come out of the registry.
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable nginx buffering
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev := <-sub.Events():
			if err := writeSSE(w, ev); err != nil {
				logger.DebugContext(r.Context(), "sse write failed, closing stream",
					"principal_id", p.ID, "error", err)
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev sse.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
