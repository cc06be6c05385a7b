// Package response holds the JSON envelopes of the HTTP API.
package response

import "net/http"

type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// OK wraps data in a successful envelope.
func OK[T any](data T, message string) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Message: message, Data: data}
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// Error builds the body of a failed request; Status carries the text of
// the HTTP status code ("Bad Request", "Not Found").
func Error(code int, message string) *ErrorResponse {
	return &ErrorResponse{Error: message, Status: http.StatusText(code)}
}
