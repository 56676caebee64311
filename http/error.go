package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/hlog"

	"github.com/themunch/munch"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// Error parse HTTP error and write to header and body
func (s *Server) Error(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		hlog.FromRequest(r).Error().Msg(err.Error())
		sentry.CaptureException(err)

		clientError, ok := err.(ClientError)
		if !ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			body := map[string]interface{}{
				"error": "internal_error",
			}
			_ = json.NewEncoder(w).Encode(body)
			return
		}

		body, err := clientError.Body()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		status, headers := clientError.Headers()
		for k, v := range headers {
			w.Header().Set(k, v)
		}

		w.WriteHeader(status)

		_, err = w.Write(body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
}

// ClientError is the interface that wraps methods related to error on the client side
type ClientError interface {
	Error() string
	Body() ([]byte, error)
	Headers() (int, map[string]string)
}

// Error represents a detail error message
type Error struct {
	Cause     error  `json:"-"`
	Code      string `json:"error"`
	Message   string `json:"message,omitempty"`
	ResetTime int64  `json:"resetTime,omitempty"`
	Status    int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return e.Code + ": " + e.Message + ": " + e.Cause.Error()
}

// Body returns response body from error
func (e *Error) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("Error while parsing response body: %v", err)
	}
	return body, nil
}

// Headers returns status and header
func (e *Error) Headers() (int, map[string]string) {
	return e.Status, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
}

// NewError returns new error message
func NewError(err error, status int, code, message string) error {
	return &Error{
		Cause:   err,
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// newRateLimitError maps a denied rate-limit check to a 429 response carrying
// the epoch-millisecond reset time, after which the caller may retry.
func newRateLimitError(resetTime time.Time) error {
	return &Error{
		Code:      "too_many_requests",
		Message:   "Too many requests, please try again later",
		ResetTime: resetTime.UnixMilli(),
		Status:    http.StatusTooManyRequests,
	}
}

// storeError maps store failures onto client responses: an absent subscriber
// stays 404, anything else is a 500 with the given code.
func storeError(err error, code string) error {
	if munch.ErrorCode(err) == munch.ErrNotFound {
		return NewError(err, http.StatusNotFound, "not_found", munch.ErrorMessage(err))
	}
	return NewError(err, http.StatusInternalServerError, code, "")
}
