package crime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
	"github.com/phlyk/bewhere-mvp-sub002/internal/storage"
)

const tableName = "crime_stats"

const ratePerCapitaScale = 1000

var _ etl.Loader = (*Loader)(nil)

type (
	// LoaderConfig controls crime persistence.
	LoaderConfig struct {
		// BatchSize is the number of records per transaction. Each batch is
		// all-or-nothing; zero means a single transaction for the whole load.
		BatchSize int
	}

	// Loader upserts crime records keyed by (department_code, category,
	// source, year, month), deriving the per-1000-inhabitants rate from the
	// population figures already in the store. A department/year without a
	// population figure stores a NULL rate rather than failing the load.
	Loader struct {
		conn   *storage.Connection
		config LoaderConfig
	}

	populationKey struct {
		code string
		year int
	}
)

// NewLoader creates a crime loader over the given connection.
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

	// Population lookups repeat heavily across categories of the same
	// department/year, so cache them for the duration of the load.
	populations := make(map[populationKey]sql.NullInt64)

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
				if err := l.upsert(ctx, tx, record, batch, populations); err != nil {
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

//nolint:funlen // one upsert, three SQL statements
func (l *Loader) upsert(
	ctx context.Context,
	tx *sql.Tx,
	record etl.LoadRecord,
	result *etl.LoadResult,
	populations map[populationKey]sql.NullInt64,
) error {
	code, _ := record.Key["department_code"].(string)
	category, _ := record.Key["category"].(string)
	source, _ := record.Key["source"].(string)
	year, yearOK := record.Key["year"].(int)

	month, monthOK := record.Key["month"].(int)
	if code == "" || category == "" || source == "" || !yearOK || !monthOK {
		return fmt.Errorf("load record has incomplete natural key: %v", record.Key)
	}

	count, countOK := record.Fields["incident_count"].(int)
	if !countOK {
		return fmt.Errorf("load record for %s/%s/%d has no incident count", code, category, year)
	}

	rate, err := l.ratePer1000(ctx, tx, code, year, count, populations)
	if err != nil {
		return err
	}

	// Existence check by natural key, never by surrogate id.
	var id int64

	err = tx.QueryRowContext(ctx, `
		SELECT id FROM crime_stats
		WHERE department_code = $1 AND category = $2 AND source = $3 AND year = $4 AND month = $5
	`, code, category, source, year, month).Scan(&id)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE crime_stats
			SET incident_count = $2,
			    rate_per_1000 = $3,
			    updated_at = NOW()
			WHERE id = $1
		`, id, count, rate)
		if err != nil {
			return fmt.Errorf("failed to update crime stat %s/%s/%d: %w", code, category, year, err)
		}

		result.UpdatedCount++
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO crime_stats (department_code, category, source, year, month, incident_count, rate_per_1000)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, code, category, source, year, month, count, rate)
		if err != nil {
			return fmt.Errorf("failed to insert crime stat %s/%s/%d: %w", code, category, year, err)
		}

		result.InsertedCount++
	default:
		return fmt.Errorf("failed to look up crime stat %s/%s/%d: %w", code, category, year, err)
	}

	return nil
}

// ratePer1000 derives the per-capita rate from the most recent population
// figure at or before the observation year. No figure means a NULL rate.
func (l *Loader) ratePer1000(
	ctx context.Context,
	tx *sql.Tx,
	code string,
	year int,
	count int,
	populations map[populationKey]sql.NullInt64,
) (sql.NullFloat64, error) {
	key := populationKey{code: code, year: year}

	population, cached := populations[key]
	if !cached {
		err := tx.QueryRowContext(ctx, `
			SELECT population FROM population_stats
			WHERE department_code = $1 AND year <= $2
			ORDER BY year DESC
			LIMIT 1
		`, code, year).Scan(&population.Int64)

		switch {
		case err == nil:
			population.Valid = true
		case errors.Is(err, sql.ErrNoRows):
			population.Valid = false
		default:
			return sql.NullFloat64{}, fmt.Errorf("failed to look up population for %s/%d: %w", code, year, err)
		}

		populations[key] = population
	}

	if !population.Valid || population.Int64 <= 0 {
		return sql.NullFloat64{}, nil
	}

	return sql.NullFloat64{
		Float64: float64(count) / float64(population.Int64) * ratePerCapitaScale,
		Valid:   true,
	}, nil
}
