package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/storepulse/storepulse-api/internal/models"
	"github.com/storepulse/storepulse-api/internal/report"
	"github.com/storepulse/storepulse-api/internal/repository"
)

// csvHeader matches the original report layout consumed by downstream tools.
var csvHeader = []string{
	"store_id",
	"uptime_last_hour(in minutes)",
	"uptime_last_day(in hours)",
	"uptime_last_week(in hours)",
	"downtime_last_hour(in minutes)",
	"downtime_last_day(in hours)",
	"downtime_last_week(in hours)",
}

type ReportHandler struct {
	manager *report.Manager
	logger  zerolog.Logger
}

func NewReportHandler(manager *report.Manager, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{manager: manager, logger: logger}
}

// TriggerReport starts a new report job and returns its identifier
// immediately, before any computation happens.
func (h *ReportHandler) TriggerReport(w http.ResponseWriter, r *http.Request) {
	id, err := h.manager.Trigger(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to trigger report")
		http.Error(w, "Failed to trigger report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"report_id": id})
}

// GetReport polls a report job. Running and Failed jobs answer with JSON;
// a Complete job streams its table as a CSV attachment.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("report_id")
	if id == "" {
		http.Error(w, "Missing report_id parameter", http.StatusBadRequest)
		return
	}

	job, err := h.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			http.Error(w, "Report ID not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get report: "+err.Error(), http.StatusInternalServerError)
		return
	}

	switch job.Status {
	case models.ReportStatusRunning:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": string(job.Status)})
	case models.ReportStatusFailed:
		reason := ""
		if job.ErrorMessage != nil {
			reason = *job.ErrorMessage
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"status": string(job.Status), "error": reason})
	case models.ReportStatusComplete:
		rows, err := h.manager.Rows(r.Context(), id)
		if err != nil {
			http.Error(w, "Failed to load report rows: "+err.Error(), http.StatusInternalServerError)
			return
		}
		h.writeCSV(w, id, rows)
	default:
		http.Error(w, "Unknown report status", http.StatusInternalServerError)
	}
}

// CancelReport marks a Running job Failed with reason "cancelled".
func (h *ReportHandler) CancelReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["reportID"]
	if err := h.manager.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			http.Error(w, "Report ID not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, repository.ErrReportTerminal) {
			http.Error(w, "Report already finished", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to cancel report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": string(models.ReportStatusFailed)})
}

func (h *ReportHandler) writeCSV(w http.ResponseWriter, id string, rows []models.ReportRow) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.csv"`, id))

	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	for _, row := range rows {
		cw.Write([]string{
			row.StoreID,
			strconv.FormatInt(row.UptimeLastHour, 10),
			strconv.FormatFloat(row.UptimeLastDay, 'f', 2, 64),
			strconv.FormatFloat(row.UptimeLastWeek, 'f', 2, 64),
			strconv.FormatInt(row.DowntimeLastHour, 10),
			strconv.FormatFloat(row.DowntimeLastDay, 'f', 2, 64),
			strconv.FormatFloat(row.DowntimeLastWeek, 'f', 2, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error().Err(err).Str("report_id", id).Msg("Failed to stream report CSV")
	}
}
