package handlers

import (
	"net/http"
)

func (a *App) Metrics(w http.ResponseWriter, r *http.Request) {
	subscribers := 0
	if a.Events != nil {
		subscribers = a.Events.Subscribers()
	}
	a.json(w, http.StatusOK, map[string]any{
		"pollers":           a.Coordinator.Metrics(),
		"active_tasks":      a.Coordinator.Active(),
		"event_subscribers": subscribers,
	})
}
