package population

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
	"github.com/phlyk/bewhere-mvp-sub002/internal/storage"
)

const tableName = "population_stats"

var _ etl.Loader = (*Loader)(nil)

type (
	// LoaderConfig controls population persistence.
	LoaderConfig struct {
		// BatchSize is the number of records per transaction. Each batch is
		// all-or-nothing; zero means a single transaction for the whole load.
		BatchSize int
	}

	// Loader upserts population records keyed by (department_code, year).
	Loader struct {
		conn   *storage.Connection
		config LoaderConfig
	}
)

// NewLoader creates a population loader over the given connection.
func NewLoader(conn *storage.Connection, cfg LoaderConfig) *Loader {
	return &Loader{conn: conn, config: cfg}
}

// Validate reports whether the loader holds a live connection.
func (l *Loader) Validate() bool {
	return l.conn.HealthCheck(context.Background()) == nil
}

// Load upserts records in transaction-scoped batches. A record whose natural
// key exists is updated, otherwise inserted. Any per-record failure rolls
// back the in-flight batch and aborts the load.
func (l *Loader) Load(ctx context.Context, records []etl.LoadRecord) (*etl.LoadResult, error) {
	result := &etl.LoadResult{}

	batchSize := l.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(records)
	}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := &etl.LoadResult{}

		err := l.conn.WithTx(ctx, func(tx *sql.Tx) error {
			for _, record := range records[start:end] {
				if err := l.upsert(ctx, tx, record, batch); err != nil {
					return err
				}
			}

			return nil
		})
		if err != nil {
			return result, &etl.LoadError{Table: tableName, Err: err}
		}

		result.InsertedCount += batch.InsertedCount
		result.UpdatedCount += batch.UpdatedCount
		result.SkippedCount += batch.SkippedCount
	}

	return result, nil
}

func (l *Loader) upsert(ctx context.Context, tx *sql.Tx, record etl.LoadRecord, result *etl.LoadResult) error {
	code, _ := record.Key["department_code"].(string)

	year, yearOK := record.Key["year"].(int)
	if code == "" || !yearOK {
		return fmt.Errorf("load record has incomplete natural key: %v", record.Key)
	}

	count, countOK := record.Fields["population"].(int)
	if !countOK {
		return fmt.Errorf("load record for %s/%d has no population figure", code, year)
	}

	source, _ := record.Fields["source"].(string)
	if source == "" {
		source = DefaultSource
	}

	// Existence check by natural key, never by surrogate id.
	var id int64

	err := tx.QueryRowContext(ctx,
		`SELECT id FROM population_stats WHERE department_code = $1 AND year = $2`,
		code, year,
	).Scan(&id)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE population_stats
			SET population = $2,
			    source = $3,
			    updated_at = NOW()
			WHERE id = $1
		`, id, count, source)
		if err != nil {
			return fmt.Errorf("failed to update population %s/%d: %w", code, year, err)
		}

		result.UpdatedCount++
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO population_stats (department_code, year, population, source)
			VALUES ($1, $2, $3, $4)
		`, code, year, count, source)
		if err != nil {
			return fmt.Errorf("failed to insert population %s/%d: %w", code, year, err)
		}

		result.InsertedCount++
	default:
		return fmt.Errorf("failed to look up population %s/%d: %w", code, year, err)
	}

	return nil
}
