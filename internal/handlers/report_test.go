package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/storepulse/storepulse-api/internal/models"
	"github.com/storepulse/storepulse-api/internal/report"
	"github.com/storepulse/storepulse-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStoreRepo struct {
	gate chan struct{}
}

func (s *stubStoreRepo) ListStoreIDs(ctx context.Context) ([]string, error) {
	return []string{"store-a"}, nil
}

func (s *stubStoreRepo) MaxObservationTimestamp(ctx context.Context) (time.Time, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
	return time.Date(2023, 6, 5, 16, 0, 0, 0, time.UTC), nil
}

func (s *stubStoreRepo) ObservationsInRange(ctx context.Context, storeID string, from, to time.Time) ([]models.StoreObservation, error) {
	return []models.StoreObservation{
		{StoreID: storeID, TimestampUTC: time.Date(2023, 6, 5, 15, 0, 0, 0, time.UTC), Status: models.StatusActive},
	}, nil
}

func (s *stubStoreRepo) LatestObservationBefore(ctx context.Context, storeID string, before time.Time) (*models.StoreObservation, error) {
	return nil, nil
}

func (s *stubStoreRepo) BusinessHours(ctx context.Context, storeID string) ([]models.BusinessHours, error) {
	return nil, nil
}

func (s *stubStoreRepo) Timezone(ctx context.Context, storeID string) (string, error) {
	return "", nil
}

func (s *stubStoreRepo) Summary(ctx context.Context) (models.DatasetSummary, error) {
	return models.DatasetSummary{Stores: 1}, nil
}

type memReportRepo struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
	rows map[string][]models.ReportRow
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{jobs: map[string]*models.ReportJob{}, rows: map[string][]models.ReportRow{}}
}

func (m *memReportRepo) Create(ctx context.Context, id string) (models.ReportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &models.ReportJob{ID: id, Status: models.ReportStatusRunning, CreatedAt: time.Now()}
	m.jobs[id] = job
	return *job, nil
}

func (m *memReportRepo) Get(ctx context.Context, id string) (models.ReportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.ReportJob{}, repository.ErrReportNotFound
	}
	return *job, nil
}

func (m *memReportRepo) Complete(ctx context.Context, id string, rows []models.ReportRow, storesTotal, storesFailed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != models.ReportStatusRunning {
		return repository.ErrReportTerminal
	}
	job.Status = models.ReportStatusComplete
	job.StoresTotal = storesTotal
	job.StoresFailed = storesFailed
	m.rows[id] = rows
	return nil
}

func (m *memReportRepo) Fail(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != models.ReportStatusRunning {
		return repository.ErrReportTerminal
	}
	job.Status = models.ReportStatusFailed
	job.ErrorMessage = &reason
	return nil
}

func (m *memReportRepo) Rows(ctx context.Context, id string) ([]models.ReportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

func newTestRouter(stores *stubStoreRepo) (*mux.Router, *report.Manager) {
	manager := report.NewManager(stores, newMemReportRepo(), report.Config{
		WorkerCount:     2,
		DefaultTimezone: "America/Chicago",
	}, zerolog.Nop())

	router := mux.NewRouter()
	handler := NewReportHandler(manager, zerolog.Nop())
	router.HandleFunc("/trigger_report", handler.TriggerReport).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/get_report", handler.GetReport).Methods(http.MethodGet)
	router.HandleFunc("/reports/{reportID}/cancel", handler.CancelReport).Methods(http.MethodPost)
	return router, manager
}

func TestTriggerReportReturnsID(t *testing.T) {
	router, _ := newTestRouter(&stubStoreRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trigger_report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["report_id"])
}

func TestGetReportMissingParam(t *testing.T) {
	router, _ := newTestRouter(&stubStoreRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_report", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReportUnknownID(t *testing.T) {
	router, _ := newTestRouter(&stubStoreRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_report?report_id=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportRunningThenCSV(t *testing.T) {
	stores := &stubStoreRepo{gate: make(chan struct{})}
	router, manager := newTestRouter(stores)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trigger_report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var trigger map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trigger))
	id := trigger["report_id"]

	// Worker is parked behind the gate: the job must poll as Running.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_report?report_id="+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var poll map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Equal(t, "Running", poll["status"])

	close(stores.gate)
	manager.Wait()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_report?report_id="+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), id)

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "store-a", records[1][0])
	assert.Equal(t, "60", records[1][1]) // active the whole last hour
}

func TestGetReportFailed(t *testing.T) {
	stores := &stubStoreRepo{gate: make(chan struct{})}
	router, manager := newTestRouter(stores)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trigger_report", nil))
	var trigger map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trigger))
	id := trigger["report_id"]

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reports/"+id+"/cancel", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	manager.Wait()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_report?report_id="+id, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var poll map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Equal(t, "Failed", poll["status"])
	assert.Equal(t, "cancelled", poll["error"])
}
