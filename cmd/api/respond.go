package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/auth"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/storage"
)

// errBadRequest marks client input errors raised by the handlers themselves.
var errBadRequest = errors.New("bad request")

// badRequest wraps msg so respondError answers 400 with msg as the message.
type badRequest string

func (b badRequest) Error() string { return string(b) }
func (b badRequest) Is(target error) bool { return target == errBadRequest }

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps err onto a status code. Unknown errors are logged and
// reported as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, data.ErrInvalidID), errors.Is(err, storage.ErrUnsupportedType):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		status, msg = http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, errInvalidCredentials):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, data.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, data.ErrUserNotFound), errors.Is(err, data.ErrMessageNotFound),
		errors.Is(err, data.ErrExchangeNotFound), errors.Is(err, storage.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, data.ErrUserExists), errors.Is(err, data.ErrExchangeNotPending):
		status, msg = http.StatusConflict, err.Error()
	}

	log := logging.Ctx(r.Context())
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	} else {
		log.Debug().Err(err).Int(logging.FieldStatus, status).Msg("request rejected")
	}
	respondJSON(w, status, map[string]string{"message": msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body")
	}
	return nil
}
