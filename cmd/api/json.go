package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farxc/orcamento-analytics/internal/reports"
	"github.com/farxc/orcamento-analytics/internal/response"
)

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, response.Error(status, message))
}

// writeServiceError maps report errors to status codes. Anything unexpected
// is a 500 whose SQL the report service has already logged.
func (app *application) writeServiceError(w http.ResponseWriter, err error) {
	const component = "API"
	switch {
	case errors.Is(err, reports.ErrUnknownReport):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reports.ErrInvalidFilter):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		app.logger.Error(component, "Request failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
