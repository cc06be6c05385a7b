package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/farxc/orcamento-analytics/internal/reports"
	"github.com/farxc/orcamento-analytics/internal/response"
)

type ListReportsResponse = response.APIResponse[[]reports.Definition]

type FilterOptionsResponse = response.APIResponse[reports.FilterOptions]

type LedgerResponse = response.APIResponse[reports.LedgerPage]

// queryInt reads an optional integer query parameter.
func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", reports.ErrInvalidFilter, key)
	}
	return n, nil
}

func parseReportParams(r *http.Request) (reports.Params, error) {
	q := r.URL.Query()
	var (
		p   reports.Params
		err error
	)
	if p.Year, err = queryInt(q, "ano"); err != nil {
		return p, err
	}
	if p.Month, err = queryInt(q, "mes"); err != nil {
		return p, err
	}
	if p.Bimester, err = queryInt(q, "bimestre"); err != nil {
		return p, err
	}
	p.UG = q.Get("ug")
	p.RevenueType = q.Get("tipo_receita")
	p.Modality = q.Get("modalidade")
	return p, nil
}

// @Summary		List reports
// @Tags			Reports
// @Produce		json
// @Success		200	{object}	ListReportsResponse
// @Router			/reports [get]
func (app *application) handleListReports(w http.ResponseWriter, r *http.Request) {
	resp := response.OK(reports.Definitions(), "")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Build a report
// @Description	Builds the named report for a year and an optional month or bimester.
// @Tags			Reports
// @Produce		json
// @Param			name			path		string	true	"Report name"
// @Param			ano				query		int		true	"Exercise year"
// @Param			mes				query		int		false	"Last month (1-12)"
// @Param			bimestre		query		int		false	"Bimester (1-6)"
// @Param			ug				query		string	false	"Managing unit code"
// @Param			tipo_receita	query		string	false	"corrente, capital or intra"
// @Success		200				{object}	reports.Report
// @Failure		400				{object}	response.ErrorResponse
// @Failure		404				{object}	response.ErrorResponse
// @Failure		500				{object}	response.ErrorResponse
// @Router			/reports/{name} [get]
func (app *application) handleGetReport(w http.ResponseWriter, r *http.Request) {
	p, err := parseReportParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := app.reports.Run(r.Context(), chi.URLParam(r, "name"), p)
	if err != nil {
		app.writeServiceError(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, rep); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Export a report
// @Tags			Reports
// @Produce		text/csv
// @Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param			name	path	string	true	"Report name"
// @Param			format	path	string	true	"csv or xlsx"
// @Router			/reports/{name}/export.{format} [get]
func (app *application) handleExportReport(w http.ResponseWriter, r *http.Request) {
	const component = "API"
	name, format := chi.URLParam(r, "name"), chi.URLParam(r, "format")
	if format != "csv" && format != "xlsx" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported export format %q", format))
		return
	}
	p, err := parseReportParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := app.reports.Run(r.Context(), name, p)
	if err != nil {
		app.writeServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("%s_%d.%s", name, p.Year, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = reports.WriteCSV(w, rep)
	} else {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = reports.WriteXLSX(w, rep)
	}
	if err != nil {
		app.logger.Error(component, "Export failed: report=%s format=%s error=%v", name, format, err)
	}
}

// @Summary		Filter options
// @Description	Loaded years, latest month with data and UGs of a year.
// @Tags			Reports
// @Produce		json
// @Param			ano	query		int	false	"Year; defaults to the latest loaded"
// @Success		200	{object}	FilterOptionsResponse
// @Router			/filters [get]
func (app *application) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	year, err := queryInt(r.URL.Query(), "ano")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := app.reports.FilterOptions(r.Context(), year)
	if err != nil {
		app.writeServiceError(w, err)
		return
	}
	resp := response.OK(opts, "")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Ledger postings
// @Tags			Ledger
// @Produce		json
// @Param			kind	path		string	true	"despesa or receita"
// @Param			ano		query		int		true	"Exercise year"
// @Param			mes		query		int		false	"Month"
// @Param			ug		query		string	false	"Managing unit code"
// @Param			conta	query		string	false	"Nine-digit accounting account"
// @Success		200		{object}	LedgerResponse
// @Failure		400		{object}	response.ErrorResponse
// @Router			/ledger/{kind} [get]
func (app *application) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := reports.LedgerParams{Kind: chi.URLParam(r, "kind"), UG: q.Get("ug"), Account: q.Get("conta")}
	var err error
	if p.Year, err = queryInt(q, "ano"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.Month, err = queryInt(q, "mes"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := app.reports.Ledger(r.Context(), p)
	if err != nil {
		app.writeServiceError(w, err)
		return
	}
	resp := response.OK(page, "")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
