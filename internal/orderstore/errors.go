package orderstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRejected     = errors.New("request rejected")
	ErrTransient    = errors.New("order service unavailable")
)

// StatusError is a non-2xx answer from the order service.
type StatusError struct {
	Code    int
	Message string
	class   error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (http %d)", e.Unwrap(), e.Code)
	}
	return fmt.Sprintf("%v (http %d): %s", e.Unwrap(), e.Code, e.Message)
}

// Unwrap returns the error class; a StatusError built by hand is classified
// from its Code.
func (e *StatusError) Unwrap() error {
	if e.class == nil {
		return classify(e.Code)
	}
	return e.class
}

func newStatusError(code int, body []byte) *StatusError {
	return &StatusError{Code: code, Message: errorMessage(body), class: classify(code)}
}

func classify(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return ErrTransient
	default:
		return ErrRejected
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

// IsTransient reports whether a manual retry might succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
