package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/storepulse/storepulse-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(report *handlers.ReportHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Report trigger/poll endpoints
	router.HandleFunc("/trigger_report", report.TriggerReport).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/get_report", report.GetReport).Methods(http.MethodGet)
	router.HandleFunc("/reports/{reportID}/cancel", report.CancelReport).Methods(http.MethodPost)

	return router
}
