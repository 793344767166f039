package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Kinis2025/sebelo/internal/store"
	"github.com/Kinis2025/sebelo/internal/weather"
)

// retryAfterSeconds is advertised while the store reconnects.
const retryAfterSeconds = "5"

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound), errors.Is(err, weather.ErrLocationUnknown):
		return http.StatusNotFound
	case errors.Is(err, weather.ErrLookupFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure writes err with its mapped status. Internal errors are not
// echoed to the client.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)

	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
		msg = store.ErrUnavailable.Error()
	case http.StatusNotFound:
		msg = "not found"
		if errors.Is(err, weather.ErrLocationUnknown) {
			msg = weather.ErrLocationUnknown.Error()
		}
	case http.StatusBadGateway:
		msg = weather.ErrLookupFailed.Error()
	case http.StatusInternalServerError:
		msg = http.StatusText(status)
	}

	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
