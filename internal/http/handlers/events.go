package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hongminglow/store-rating-be/internal/logctx"
	"github.com/hongminglow/store-rating-be/internal/notify"
)

// EventsHandler streams rating events as Server-Sent Events.
type EventsHandler struct {
	events    notify.Subscriber
	heartbeat time.Duration
}

// NewEventsHandler returns a streaming handler. A non-positive heartbeat
// disables keep-alive comments.
func NewEventsHandler(events notify.Subscriber, heartbeat time.Duration) *EventsHandler {
	return &EventsHandler{events: events, heartbeat: heartbeat}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// the server write timeout would cut the stream otherwise
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	log := logctx.From(r.Context())
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn("events_flush_unsupported", slog.Any("err", err))
		return
	}

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		t := time.NewTicker(h.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				log.Error("events_encode_failed", slog.Any("err", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: rating\ndata: %s\n\n", payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
