// Package ingest bulk-loads the raw CSV exports (activity polls, weekly menu
// hours, store timezones) into Postgres. Tables that already hold rows are
// left alone, so restarts do not re-ingest.
package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/storepulse/storepulse-api/internal/models"
)

// Accepted timestamp layouts for the status export, most common first.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999 MST",
	"2006-01-02 15:04:05 MST",
	time.RFC3339,
}

type Loader struct {
	db      *sql.DB
	dataDir string
	logger  zerolog.Logger
}

func NewLoader(db *sql.DB, dataDir string, logger zerolog.Logger) *Loader {
	return &Loader{
		db:      db,
		dataDir: dataDir,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// Load ingests all three CSV sources. Malformed rows are tolerated: they are
// counted, logged, and skipped, never fatal.
func (l *Loader) Load(ctx context.Context) error {
	if err := l.loadTable(ctx, "store_status", "store_status.csv", l.copyObservations); err != nil {
		return err
	}
	if err := l.loadTable(ctx, "business_hours", "menu_hours.csv", l.copyBusinessHours); err != nil {
		return err
	}
	return l.loadTable(ctx, "store_timezones", "timezones.csv", l.copyTimezones)
}

type copyFunc func(ctx context.Context, tx *sql.Tx, rec *csvReader) (loaded, skipped int, err error)

func (l *Loader) loadTable(ctx context.Context, table, fileName string, fn copyFunc) error {
	var count int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM monitoring."+table).Scan(&count); err != nil {
		return errors.Wrapf(err, "failed to count rows in %s", table)
	}
	if count > 0 {
		l.logger.Info().Str("table", table).Int("rows", count).Msg("Data already loaded, skipping")
		return nil
	}

	path := filepath.Join(l.dataDir, fileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn().Str("file", path).Msg("Ingest file missing, skipping")
			return nil
		}
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	rec, err := newCSVReader(f)
	if err != nil {
		return errors.Wrapf(err, "failed to read header of %s", path)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin ingest transaction")
	}
	defer tx.Rollback()

	loaded, skipped, err := fn(ctx, tx, rec)
	if err != nil {
		return errors.Wrapf(err, "failed to ingest %s", path)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit ingest of %s", path)
	}

	l.logger.Info().
		Str("table", table).
		Int("loaded", loaded).
		Int("skipped", skipped).
		Msg("Ingest complete")
	return nil
}

func (l *Loader) copyObservations(ctx context.Context, tx *sql.Tx, rec *csvReader) (int, int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("monitoring", "store_status", "store_id", "timestamp_utc", "status"))
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	loaded, skipped := 0, 0
	for {
		row, err := rec.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, skipped, err
		}
		status, err := models.ParseStatus(row["status"])
		if err != nil {
			l.logger.Warn().Err(err).Str("store_id", row["store_id"]).Msg("Dropping observation row")
			skipped++
			continue
		}
		ts, err := parseTimestamp(row["timestamp_utc"])
		if err != nil {
			l.logger.Warn().Err(err).Str("store_id", row["store_id"]).Msg("Dropping observation row")
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx, row["store_id"], ts, string(status)); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return loaded, skipped, err
	}
	return loaded, skipped, nil
}

func (l *Loader) copyBusinessHours(ctx context.Context, tx *sql.Tx, rec *csvReader) (int, int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("monitoring", "business_hours", "store_id", "day_of_week", "start_time_local", "end_time_local"))
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	loaded, skipped := 0, 0
	for {
		row, err := rec.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, skipped, err
		}
		day, err := strconv.Atoi(dayField(row))
		if err != nil || day < 0 || day > 6 {
			l.logger.Warn().Str("store_id", row["store_id"]).Str("day", dayField(row)).Msg("Dropping business hours row")
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx, row["store_id"], day, row["start_time_local"], row["end_time_local"]); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return loaded, skipped, err
	}
	return loaded, skipped, nil
}

func (l *Loader) copyTimezones(ctx context.Context, tx *sql.Tx, rec *csvReader) (int, int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("monitoring", "store_timezones", "store_id", "timezone_str"))
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	loaded, skipped := 0, 0
	seen := make(map[string]bool)
	for {
		row, err := rec.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, skipped, err
		}
		tz := row["timezone_str"]
		if tz == "" {
			tz = row["timezone"]
		}
		if tz == "" || seen[row["store_id"]] {
			skipped++
			continue
		}
		seen[row["store_id"]] = true
		if _, err := stmt.ExecContext(ctx, row["store_id"], tz); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return loaded, skipped, err
	}
	return loaded, skipped, nil
}

// dayField tolerates the header variants seen across menu hours exports.
func dayField(row map[string]string) string {
	for _, key := range []string{"day_of_week", "day", "dayofweek"} {
		if v, ok := row[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable timestamp %q", raw)
}

// csvReader wraps encoding/csv with header-name lookup, so column order in
// the exports does not matter.
type csvReader struct {
	r      *csv.Reader
	header map[string]int
}

func newCSVReader(f io.Reader) (*csvReader, error) {
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	head, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(head))
	for i, name := range head {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return &csvReader{r: r, header: header}, nil
}

func (c *csvReader) next() (map[string]string, error) {
	fields, err := c.r.Read()
	if err != nil {
		return nil, err
	}
	row := make(map[string]string, len(c.header))
	for name, idx := range c.header {
		if idx < len(fields) {
			row[name] = strings.TrimSpace(fields[idx])
		}
	}
	return row, nil
}
