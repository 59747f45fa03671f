package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Taoreunda/ptsd-homework-agent/internal/chat"
	"github.com/Taoreunda/ptsd-homework-agent/internal/participant"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// writeJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("failed to write response body", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// errForbidden marks callers who are authenticated but not allowed here.
var errForbidden = errors.New("admin access required")

// writeError maps domain errors onto HTTP statuses and user-safe messages.
//
// The persistence layer never swallows failures; this is the single place
// that decides user-facing wording.
func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	writeJSON(w, status, errorBody{Error: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, participant.ErrBadCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, participant.ErrInactive),
		errors.Is(err, session.ErrParticipantInactive):
		return http.StatusForbidden, "account not active"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, errForbidden.Error()
	case errors.Is(err, session.ErrTokenNotFound),
		errors.Is(err, session.ErrTokenExpired):
		return http.StatusUnauthorized, "please log in again"
	case errors.Is(err, session.ErrUnknownSession):
		return http.StatusNotFound, "unknown session"
	case errors.Is(err, participant.ErrNotFound),
		errors.Is(err, session.ErrParticipantNotFound):
		return http.StatusNotFound, "participant not found"
	case errors.Is(err, participant.ErrDuplicate):
		return http.StatusConflict, "participant already exists"
	case errors.Is(err, chat.ErrExchangeInFlight):
		return http.StatusConflict, "message already being processed"
	case errors.Is(err, chat.ErrMissingExchangeKey),
		errors.Is(err, participant.ErrEmptyUpdate),
		errors.Is(err, participant.ErrInvalidGroup),
		errors.Is(err, participant.ErrInvalidStatus),
		errors.Is(err, session.ErrInvalidRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrSequenceConflict),
		errors.Is(err, session.ErrUnavailable):
		return http.StatusServiceUnavailable, "temporarily unavailable, please retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decodeJSON decodes a request body into dst with unknown fields rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
