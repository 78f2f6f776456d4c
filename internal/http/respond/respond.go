package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/logctx"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Code: status, Message: message})
}

// Fail maps a classified error onto its status and client-safe message.
// Internal failures are logged with their cause; the client gets a generic message.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logctx.From(r.Context()).Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind.String()),
			slog.Any("err", err),
		)
	}
	Error(w, status, apperr.Message(err))
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("respond: encode payload failed", slog.Any("err", err))
	}
}
