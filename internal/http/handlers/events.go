package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StreamEvents relays completion events as server-sent events until the client
// goes away.
func (a *App) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if a.Events == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	sub := a.Events.Subscribe()
	defer sub.Close()

	interval := a.Heartbeat
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.Done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: completed\nid: %s\ndata: %s\n\n", ev.ID, data)
			flusher.Flush()
		}
	}
}
