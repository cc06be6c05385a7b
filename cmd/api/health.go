package main

import "net/http"

// @Summary		Health check
// @Description	returns the status of the service and its storage backend
// @Tags			Health
// @Produce		json
// @Success		200	{object}	map[string]string
// @Failure		503	{object}	map[string]string
// @Router			/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"status":  "available",
		"version": version,
		"backend": string(app.storage.Backend.Dialect()),
	}
	status := http.StatusOK
	if err := app.storage.Backend.Ping(r.Context()); err != nil {
		data["status"] = "unavailable"
		data["error"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	if err := writeJSON(w, status, data); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
