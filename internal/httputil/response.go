package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes used in the error envelope.
const (
	CodeInvalidParams = "INVALID_PARAMS"
	CodeNotFound      = "NOT_FOUND"
	CodeUnavailable   = "SOURCE_UNAVAILABLE"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodeInternal      = "INTERNAL"
)

type Response struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Status: "ok",
		Data:   data,
	})
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Status: "error",
		Error: &ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

// Queued is the body returned when work was handed to a queue.
type Queued struct {
	Queued bool `json:"queued"`
}

// Truthy reports whether a query flag is set ("1" or "true").
func Truthy(v string) bool {
	return v == "1" || v == "true"
}
