package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the error member of every API envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// BodyOf maps err to a status and error body. An AppError without a status
// or code is treated as a bad request; any other error is reported as
// INTERNAL without its text.
func BodyOf(err error) (int, ErrorBody) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL", Message: "internal error"}
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	code := appErr.Code
	if code == "" {
		code = "BAD_REQUEST"
	}
	return status, ErrorBody{Code: code, Message: appErr.Message, Details: appErr.Details}
}

// JSON writes v as the response body. Responses are marked no-store.
func JSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as a bare {"error": ...} envelope, for failures
// raised by middleware before a session is loaded.
func WriteError(w http.ResponseWriter, err error) {
	status, body := BodyOf(err)
	JSON(w, status, struct {
		Error ErrorBody `json:"error"`
	}{Error: body})
}
