package handlers

import (
	"net/http"
	"strconv"
)

// TasksResume attaches pollers to every pending task.
func (a *App) TasksResume(w http.ResponseWriter, r *http.Request) {
	started, err := a.Coordinator.ResumeAll(r.Context(), a.apiKey(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"started": started,
		"active":  a.Coordinator.Active(),
	})
}

// TasksList returns running and recently finished video tasks.
func (a *App) TasksList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := a.Records.ListTasks(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
