package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lojapdv/backend/internal/apperr"
	"lojapdv/backend/internal/reports"
	"lojapdv/backend/internal/service"
)

// handleReport serves /api/v1/reports/{view} where view is dashboard, dre
// or sales-by-<dimension>. format=csv|xlsx streams a download instead of JSON.
func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := service.ReportQuery{From: from, To: to, Store: r.URL.Query().Get("store")}
	view := strings.ToLower(r.PathValue("view"))
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	var (
		payload any
		table   reports.Table
	)
	switch {
	case view == "dashboard":
		dashboard, err := a.service.Dashboard(r.Context(), q)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		payload, table = dashboard, reports.DashboardTable(dashboard)
	case view == "dre":
		dre, err := a.service.DRE(r.Context(), q)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		payload, table = dre, reports.DRETable(dre)
	case strings.HasPrefix(view, "sales-by-"):
		dim, err := reports.ParseDimension(strings.TrimPrefix(view, "sales-by-"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		rows, err := a.service.SalesBy(r.Context(), dim, q)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		payload, table = map[string]any{"rows": rows}, reports.RowsTable(view, rows)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown report %q", view))
		return
	}

	filename := fmt.Sprintf("%s-%s-%s", view, from.Format("20060102"), to.AddDate(0, 0, -1).Format("20060102"))
	switch format {
	case "", "json":
		writeJSON(w, http.StatusOK, payload)
	case "csv":
		a.writeDownload(w, r, reports.ContentTypeCSV, filename+".csv", func(buf *bytes.Buffer) error {
			return reports.WriteCSV(buf, table)
		})
	case "xlsx":
		a.writeDownload(w, r, reports.ContentTypeXLSX, filename+".xlsx", func(buf *bytes.Buffer) error {
			return reports.WriteXLSX(buf, table)
		})
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv or xlsx"))
	}
}

// writeDownload renders into memory first so a render failure can still be
// reported as a JSON error.
func (a *API) writeDownload(w http.ResponseWriter, r *http.Request, contentType string, filename string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		a.fail(w, r, apperr.Wrap(apperr.Transport, err, "render report"))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
