package handler

import (
	"context"
	"net/http"
	"time"

	"gpsgateway/internal/core/model"
)

type ReportStore interface {
	FindReports(ctx context.Context, deviceID string, from, to time.Time) ([]*model.LocationReport, error)
	LatestReport(ctx context.Context, deviceID string) (*model.LocationReport, error)
}

type ReportHandler struct {
	reports ReportStore
}

func NewReportHandler(reports ReportStore) *ReportHandler {
	return &ReportHandler{
		reports: reports,
	}
}

// GetReports returns reports for ?imei= with from <= deviceTime < to.
// from and to are RFC 3339 and optional.
func (h *ReportHandler) GetReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	imei := q.Get("imei")
	if imei == "" {
		http.Error(w, "imei required", http.StatusBadRequest)
		return
	}

	from, err := parseTime(q.Get("from"))
	if err != nil {
		http.Error(w, "from must be RFC 3339", http.StatusBadRequest)
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		http.Error(w, "to must be RFC 3339", http.StatusBadRequest)
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		http.Error(w, "from must be before to", http.StatusBadRequest)
		return
	}

	reports, err := h.reports.FindReports(r.Context(), imei, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []*model.LocationReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *ReportHandler) GetLatestReport(w http.ResponseWriter, r *http.Request) {
	imei := r.URL.Query().Get("imei")
	if imei == "" {
		http.Error(w, "imei required", http.StatusBadRequest)
		return
	}

	report, err := h.reports.LatestReport(r.Context(), imei)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.Error(w, "no reports for device", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
