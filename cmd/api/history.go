package main

import (
	"net/http"

	"github.com/farxc/orcamento-analytics/internal/response"
	"github.com/farxc/orcamento-analytics/internal/state"
)

type GetLoadHistoryResponse = response.APIResponse[[]state.HistoryEntry]

const defaultHistoryLimit = 50

// @Summary		Get load history
// @Description	Most recent fact loads, period deletions and dimension loads first.
// @Tags			Loads
// @Produce		json
// @Param			limit	query		int	false	"Maximum entries (default 50)"
// @Success		200		{object}	GetLoadHistoryResponse
// @Failure		400		{object}	response.ErrorResponse
// @Failure		500		{object}	response.ErrorResponse
// @Router			/loads/history [get]
func (app *application) handleGetLoadHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query(), "limit")
	if err != nil || limit < 0 {
		writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}

	entries, err := app.state.History(limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to read load history: "+err.Error())
		return
	}
	if entries == nil {
		entries = []state.HistoryEntry{}
	}

	resp := response.OK(entries, "Successfully retrieved load history")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
