package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/lifecycle"
	"studio/internal/middleware"
	"studio/internal/notify"
	"studio/internal/records"
	"studio/internal/storage"
)

const defaultHeartbeat = 15 * time.Second

// App carries the dependencies of the local control API.
type App struct {
	Coordinator *lifecycle.Coordinator
	Records     *records.Store
	Files       *storage.FileStore
	Events      *notify.Queue
	Logger      *infra.Logger

	// APIKey is used when a request carries no bearer credential.
	APIKey    string
	Heartbeat time.Duration
	// Done ends open event streams so a graceful shutdown is not held up by
	// long-lived connections.
	Done <-chan struct{}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

func (a *App) logger() *infra.Logger { return infra.OrDiscard(a.Logger) }

// apiKey resolves the credential for the remote API.
func (a *App) apiKey(r *http.Request) string {
	if token := middleware.BearerToken(r); token != "" {
		return token
	}
	return a.APIKey
}

// fail maps core errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		subErr  *domain.SubmissionError
		pollErr *domain.PollError
	)
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		a.error(w, http.StatusUnauthorized, "missing_credential", "an api key is required")
	case errors.Is(err, domain.ErrInvalidKind):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "record not found")
	case errors.As(err, &subErr):
		a.json(w, http.StatusBadGateway, errorBody{Error: errorDetail{
			Code: "submission_failed", Message: subErr.Err.Error(), ID: subErr.GenerationID,
		}})
	case errors.Is(err, domain.ErrNoArtifacts):
		a.error(w, http.StatusBadGateway, "no_artifacts", err.Error())
	case errors.As(err, &pollErr):
		a.error(w, http.StatusBadGateway, "poll_failed", pollErr.Error())
	default:
		a.logger().Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("handlers: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
