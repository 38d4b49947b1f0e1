// Package report owns the report job lifecycle: trigger, background
// computation across all stores, and side-effect-free polling.
package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/storepulse/storepulse-api/internal/engine"
	"github.com/storepulse/storepulse-api/internal/models"
	"github.com/storepulse/storepulse-api/internal/repository"
	"golang.org/x/sync/errgroup"
)

// errCancelled marks a job that was cancelled by request rather than failed
// by the data source.
var errCancelled = errors.New("cancelled")

// observationLookback is how far before the week window the manager fetches
// observations, so the nearest-neighbor backfill has something to extend from.
const observationLookback = 7 * 24 * time.Hour

type Config struct {
	WorkerCount     int
	DefaultTimezone string
}

// Manager drives report jobs. The job registry lives in the report
// repository; the manager is the registry's single writer for terminal
// transitions. Triggering never blocks on computation.
type Manager struct {
	stores  repository.StoreRepository
	reports repository.ReportRepository
	cfg     Config
	logger  zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    sync.WaitGroup
}

func NewManager(stores repository.StoreRepository, reports repository.ReportRepository, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Manager{
		stores:  stores,
		reports: reports,
		cfg:     cfg,
		logger:  logger.With().Str("component", "report_manager").Logger(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Trigger allocates a report id, registers the job as Running, and starts the
// computation in the background. The id is returned before any heavy work.
func (m *Manager) Trigger(ctx context.Context) (string, error) {
	job, err := m.reports.Create(ctx, uuid.NewString())
	if err != nil {
		return "", errors.Wrap(err, "failed to create report job")
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.done.Add(1)
	go func() {
		defer m.done.Done()
		defer m.forget(job.ID)
		m.run(jobCtx, job.ID)
	}()

	m.logger.Info().Str("report_id", job.ID).Msg("Report job triggered")
	return job.ID, nil
}

// Get returns the current job state without side effects.
func (m *Manager) Get(ctx context.Context, id string) (models.ReportJob, error) {
	return m.reports.Get(ctx, id)
}

// Rows returns the materialized table of a Complete job, ordered by store id.
func (m *Manager) Rows(ctx context.Context, id string) ([]models.ReportRow, error) {
	return m.reports.Rows(ctx, id)
}

// Cancel marks a Running job Failed with reason "cancelled" and stops the
// worker pool from launching further per-store work. In-flight stores may run
// to completion; their results are discarded by the terminal-state guard.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		// Not running here: unknown id or already terminal.
		if _, err := m.reports.Get(ctx, id); err != nil {
			return err
		}
		return repository.ErrReportTerminal
	}
	cancel()
	if err := m.reports.Fail(ctx, id, errCancelled.Error()); err != nil && !errors.Is(err, repository.ErrReportTerminal) {
		return err
	}
	m.logger.Info().Str("report_id", id).Msg("Report job cancelled")
	return nil
}

// Wait blocks until all background jobs have finished. Used on shutdown.
func (m *Manager) Wait() {
	m.done.Wait()
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
	m.mu.Unlock()
}

// run executes one report job end to end on the background path.
func (m *Manager) run(ctx context.Context, id string) {
	started := time.Now()
	logger := m.logger.With().Str("report_id", id).Logger()

	rows, total, failed, err := m.compute(ctx, logger)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) {
			reason = errCancelled.Error()
		}
		// The job context may already be cancelled; the registry write must
		// still go through.
		if failErr := m.reports.Fail(context.Background(), id, reason); failErr != nil && !errors.Is(failErr, repository.ErrReportTerminal) {
			logger.Error().Err(failErr).Msg("Failed to mark report job failed")
		}
		logger.Error().Err(err).Msg("Report job failed")
		return
	}

	if err := m.reports.Complete(context.Background(), id, rows, total, failed); err != nil {
		if errors.Is(err, repository.ErrReportTerminal) {
			logger.Info().Msg("Report job already terminal, discarding result")
			return
		}
		logger.Error().Err(err).Msg("Failed to persist report result")
		return
	}

	logger.Info().
		Int("stores_total", total).
		Int("stores_failed", failed).
		Dur("elapsed", time.Since(started)).
		Msg("Report job complete")
}

// compute runs the extrapolation engine across all stores on a bounded worker
// pool. Per-store computation errors are contained: the store's row is
// omitted and counted. Data source errors abort the whole job.
func (m *Manager) compute(ctx context.Context, logger zerolog.Logger) ([]models.ReportRow, int, int, error) {
	now, err := m.stores.MaxObservationTimestamp(ctx)
	if err != nil {
		return nil, 0, 0, err
	}

	if summary, err := m.stores.Summary(ctx); err == nil {
		logger.Info().
			Int("stores", summary.Stores).
			Int("observations", summary.Observations).
			Int("business_hours_rows", summary.HoursRows).
			Int("timezone_rows", summary.TimezoneRows).
			Time("reference_now", now).
			Msg("Starting report computation")
	}

	storeIDs, err := m.stores.ListStoreIDs(ctx)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "failed to list store ids")
	}

	var (
		mu     sync.Mutex
		rows   = make([]models.ReportRow, 0, len(storeIDs))
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.WorkerCount)
	for _, storeID := range storeIDs {
		storeID := storeID
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			row, err := m.computeStore(gctx, storeID, now)
			if err != nil {
				if isDataSourceError(err) {
					return err
				}
				logger.Warn().Err(err).Str("store_id", storeID).Msg("Skipping store")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].StoreID < rows[j].StoreID })
	return rows, len(storeIDs), failed, nil
}

func (m *Manager) computeStore(ctx context.Context, storeID string, now time.Time) (models.ReportRow, error) {
	weekStart := now.Add(-observationLookback)

	obs, err := m.stores.ObservationsInRange(ctx, storeID, weekStart, now)
	if err != nil {
		return models.ReportRow{}, &dataSourceError{err}
	}
	// Seed the step function with the last status before the window so the
	// nearest-neighbor backfill covers the window's leading edge.
	prior, err := m.stores.LatestObservationBefore(ctx, storeID, weekStart)
	if err != nil {
		return models.ReportRow{}, &dataSourceError{err}
	}
	if prior != nil {
		obs = append(obs, *prior)
	}

	hours, err := m.stores.BusinessHours(ctx, storeID)
	if err != nil {
		return models.ReportRow{}, &dataSourceError{err}
	}
	tz, err := m.stores.Timezone(ctx, storeID)
	if err != nil {
		return models.ReportRow{}, &dataSourceError{err}
	}
	if tz == "" {
		tz = m.cfg.DefaultTimezone
	}

	return engine.Compute(engine.StoreInputs{
		StoreID:      storeID,
		Timezone:     tz,
		Hours:        hours,
		Observations: obs,
		Now:          now,
	})
}

// dataSourceError wraps repository failures so they escalate to a job-level
// failure instead of being swallowed as a per-store computation error.
type dataSourceError struct {
	err error
}

func (e *dataSourceError) Error() string { return e.err.Error() }
func (e *dataSourceError) Unwrap() error { return e.err }

func isDataSourceError(err error) bool {
	var dse *dataSourceError
	return errors.As(err, &dse)
}
