package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

var (
	// ErrUnknownDatasetTable is returned when a row count is requested for a
	// dataset with no known target table.
	ErrUnknownDatasetTable = errors.New("no target table known for dataset")

	// Compile-time interface assertions: RunStore is the PostgreSQL
	// implementation of the interfaces the etl domain package defines.
	_ etl.RunStore   = (*RunStore)(nil)
	_ etl.RowCounter = (*RunStore)(nil)
)

// datasetTables maps dataset names to the tables their loaders write, used by
// the orchestrator's prerequisite row counts. The table names are fixed by the
// schema, so the map is not configuration.
var datasetTables = map[string]string{
	etl.DatasetBoundaries: "boundaries",
	etl.DatasetPopulation: "population_stats",
	etl.DatasetCrime:      "crime_stats",
}

// RunStore implements etl.RunStore and etl.RowCounter with a PostgreSQL
// backend. Run rows are written once at pipeline start and updated once at
// finalization; the status report reads them back ordered by start time.
type RunStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewRunStore creates a run-history store over the given connection.
func NewRunStore(conn *Connection) (*RunStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &RunStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// CreateRun writes the initial running row for a freshly started run.
func (s *RunStore) CreateRun(ctx context.Context, run *etl.RunResult) error {
	query := `
		INSERT INTO etl_runs (id, dataset_name, status, started_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.conn.ExecContext(ctx, query, run.ID, run.Dataset, string(run.Status), run.StartedAt); err != nil {
		return fmt.Errorf("failed to create run row: %w", err)
	}

	return nil
}

// FinalizeRun updates the run row with its terminal state, counters, and the
// JSON error/warning detail.
func (s *RunStore) FinalizeRun(ctx context.Context, run *etl.RunResult) error {
	errorsJSON, err := json.Marshal(messageList(run.Errors))
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	warningsJSON, err := json.Marshal(messageList(run.Warnings))
	if err != nil {
		return fmt.Errorf("failed to marshal run warnings: %w", err)
	}

	query := `
		UPDATE etl_runs
		SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			rows_extracted = $5,
			rows_transformed = $6,
			rows_loaded = $7,
			rows_skipped = $8,
			error_count = $9,
			warning_count = $10,
			errors = $11,
			warnings = $12
		WHERE id = $1
	`

	result, err := s.conn.ExecContext(ctx, query,
		run.ID,
		string(run.Status),
		run.CompletedAt,
		run.Duration.Milliseconds(),
		run.Stats.RowsExtracted,
		run.Stats.RowsTransformed,
		run.Stats.RowsLoaded,
		run.Stats.RowsSkipped,
		run.Stats.ErrorCount,
		run.Stats.WarningCount,
		errorsJSON,
		warningsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run row: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// Run row was never created (auditing disabled at start); write it whole.
		return s.insertFinalized(ctx, run, errorsJSON, warningsJSON)
	}

	return nil
}

// ListRuns returns run history ordered by start time descending, optionally
// filtered by dataset name and bounded by limit.
func (s *RunStore) ListRuns(ctx context.Context, dataset string, limit int) ([]*etl.RunResult, error) {
	query := `
		SELECT id, dataset_name, status, started_at, completed_at, duration_ms,
		       rows_extracted, rows_transformed, rows_loaded, rows_skipped,
		       error_count, warning_count, errors, warnings
		FROM etl_runs
		WHERE ($1 = '' OR dataset_name = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.QueryContext(ctx, query, dataset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var runs []*etl.RunResult

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run history: %w", err)
	}

	return runs, nil
}

// CountRows reports the persisted row count of a dataset's target table.
func (s *RunStore) CountRows(ctx context.Context, dataset string) (int, error) {
	table, ok := datasetTables[dataset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDatasetTable, dataset)
	}

	// Table name comes from the fixed map above, never from user input.
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	return count, nil
}

func (s *RunStore) insertFinalized(ctx context.Context, run *etl.RunResult, errorsJSON, warningsJSON []byte) error {
	query := `
		INSERT INTO etl_runs (
			id, dataset_name, status, started_at, completed_at, duration_ms,
			rows_extracted, rows_transformed, rows_loaded, rows_skipped,
			error_count, warning_count, errors, warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	if _, err := s.conn.ExecContext(ctx, query,
		run.ID, run.Dataset, string(run.Status), run.StartedAt, run.CompletedAt,
		run.Duration.Milliseconds(),
		run.Stats.RowsExtracted, run.Stats.RowsTransformed,
		run.Stats.RowsLoaded, run.Stats.RowsSkipped,
		run.Stats.ErrorCount, run.Stats.WarningCount,
		errorsJSON, warningsJSON,
	); err != nil {
		return fmt.Errorf("failed to insert finalized run row: %w", err)
	}

	return nil
}

// messageList normalizes a nil slice to an empty one so the JSONB columns
// always hold arrays.
func messageList(messages []string) []string {
	if messages == nil {
		return []string{}
	}

	return messages
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (*etl.RunResult, error) {
	var (
		run          etl.RunResult
		status       string
		completedAt  *time.Time
		durationMS   int64
		errorsJSON   []byte
		warningsJSON []byte
	)

	err := scanner.Scan(
		&run.ID,
		&run.Dataset,
		&status,
		&run.StartedAt,
		&completedAt,
		&durationMS,
		&run.Stats.RowsExtracted,
		&run.Stats.RowsTransformed,
		&run.Stats.RowsLoaded,
		&run.Stats.RowsSkipped,
		&run.Stats.ErrorCount,
		&run.Stats.WarningCount,
		&errorsJSON,
		&warningsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}

	run.Status = etl.Status(status)

	if completedAt != nil {
		run.CompletedAt = *completedAt
	}

	run.Duration = time.Duration(durationMS) * time.Millisecond

	if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run errors: %w", err)
	}

	if err := json.Unmarshal(warningsJSON, &run.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run warnings: %w", err)
	}

	return &run, nil
}
