package boundaries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
	"github.com/phlyk/bewhere-mvp-sub002/internal/geometry"
	"github.com/phlyk/bewhere-mvp-sub002/internal/storage"
)

const tableName = "boundaries"

var _ etl.Loader = (*Loader)(nil)

type (
	// LoaderConfig controls boundary persistence.
	LoaderConfig struct {
		// BatchSize is the number of records per transaction. Each batch is
		// all-or-nothing; zero means a single transaction for the whole load.
		BatchSize int
		// Column carries the spatial reference for the geometry column.
		Column geometry.ColumnConfig
	}

	// Loader upserts boundary records into the boundaries table, keyed by the
	// natural key (code, level).
	Loader struct {
		conn   *storage.Connection
		config LoaderConfig
	}
)

// NewLoader creates a boundary loader over the given connection.
func NewLoader(conn *storage.Connection, cfg LoaderConfig) *Loader {
	if cfg.Column.SRID == 0 {
		cfg.Column = geometry.NewColumnConfig()
	}

	return &Loader{conn: conn, config: cfg}
}

// Validate reports whether the loader holds a live connection.
func (l *Loader) Validate() bool {
	return l.conn.HealthCheck(context.Background()) == nil
}

// Load upserts records in transaction-scoped batches. A record whose natural
// key exists is updated, otherwise inserted. Any per-record failure rolls
// back the in-flight batch and aborts the load: partially committed boundary
// geometry is unsafe to leave behind.
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

		// Counters accrue per batch and merge only after commit, so a rolled
		// back batch never inflates the result.
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
	code, _ := record.Key["code"].(string)

	level, _ := record.Key["level"].(string)
	if code == "" || level == "" {
		return fmt.Errorf("load record has incomplete natural key: %v", record.Key)
	}

	name, _ := record.Fields["name"].(string)

	geoJSON, err := json.Marshal(record.Geometry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit geometry for %s: %w", code, err)
	}

	// Existence check by natural key, never by surrogate id.
	var id int64

	err = tx.QueryRowContext(ctx,
		`SELECT id FROM boundaries WHERE code = $1 AND level = $2`,
		code, level,
	).Scan(&id)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE boundaries
			SET name = $2,
			    geometry = ST_GeomFromText($3, $4),
			    geojson = $5,
			    updated_at = NOW()
			WHERE id = $1
		`, id, name, record.GeometryWKT, l.config.Column.SRID, geoJSON)
		if err != nil {
			return fmt.Errorf("failed to update boundary %s: %w", code, err)
		}

		result.UpdatedCount++
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO boundaries (code, level, name, geometry, geojson)
			VALUES ($1, $2, $3, ST_GeomFromText($4, $5), $6)
		`, code, level, name, record.GeometryWKT, l.config.Column.SRID, geoJSON)
		if err != nil {
			return fmt.Errorf("failed to insert boundary %s: %w", code, err)
		}

		result.InsertedCount++
	default:
		return fmt.Errorf("failed to look up boundary %s: %w", code, err)
	}

	return nil
}
