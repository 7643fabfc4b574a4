package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/spaces/pkg/errs"
)

type envelope map[string]any

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, envelope{"data": data})
}

// Error пишет ошибку с кодом из errs.ToHTTP. 5xx логируются.
func Error(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := errs.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		reqID, _ := FromContext(ctx)
		slog.Error(msg, "req_id", reqID, slog.Any("err", err))
	}
	body := ErrorBody{Message: msg}
	if err != nil {
		body.Reason = err.Error()
	}
	JSON(w, status, envelope{"error": body})
}

// Decode reads the {"data": ...} or {"error": ...} envelope written by OK
// and Error. A non-2xx status maps back through errs.FromHTTP.
func Decode(resp *http.Response, dst any) error {
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *ErrorBody      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 400 {
		return errors.Join(errs.ErrUpstream, err)
	}
	if base := errs.FromHTTP(resp.StatusCode); base != nil {
		if env.Error != nil {
			return &StatusError{Err: base, Status: resp.StatusCode, Message: env.Error.Message, Reason: env.Error.Reason}
		}
		return &StatusError{Err: base, Status: resp.StatusCode}
	}
	if dst == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return errors.Join(errs.ErrUpstream, err)
	}
	return nil
}

// StatusError keeps the server's message next to the mapped sentinel.
type StatusError struct {
	Err     error
	Status  int
	Message string
	Reason  string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return e.Err.Error() + ": " + e.Message + ": " + e.Reason
	}
	if e.Message != "" {
		return e.Err.Error() + ": " + e.Message
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }
