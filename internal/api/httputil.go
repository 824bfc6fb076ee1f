package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"reward-farming/internal/farming"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

func (e *httpError) Unwrap() error {
	return e.cause
}

// HTTPError creates an error with an http status code.
func HTTPError(cause error, status int) error {
	return &httpError{cause: cause, status: status}
}

// BadRequest is HTTPError with http.StatusBadRequest.
func BadRequest(cause error) error {
	return HTTPError(cause, http.StatusBadRequest)
}

// HandlerFunc is like http.HandlerFunc but returns an error. An httpError selects the response
// status; any other error is classified with statusFor.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc converts a HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		status := statusFor(err)
		var he *httpError
		if errors.As(err, &he) {
			status = he.status
		}
		w.Header().Set("Content-Type", JSONContentType)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps engine error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, farming.ErrPoolNotFound),
		errors.Is(err, farming.ErrPositionNotFound),
		errors.Is(err, farming.ErrFunderNotFound):
		return http.StatusNotFound
	}
	switch farming.KindOf(err) {
	case farming.KindConfig:
		return http.StatusBadRequest
	case farming.KindAuthorization:
		return http.StatusForbidden
	case farming.KindInsufficientFunds, farming.KindPaused, farming.KindPrecondition:
		return http.StatusConflict
	case farming.KindOverflow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// JSONContentType is the content type of every API response.
const JSONContentType = "application/json; charset=utf-8"

// ParseJSON decodes a JSON object in strict mode. An empty body leaves v untouched.
func ParseJSON(r io.Reader, v any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// WriteJSON responds with obj in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", JSONContentType)
	return json.NewEncoder(w).Encode(obj)
}

// WriteJSONStatus is WriteJSON with an explicit status code.
func WriteJSONStatus(w http.ResponseWriter, status int, obj any) error {
	w.Header().Set("Content-Type", JSONContentType)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(obj)
}
