// Package migrations embeds the SQL schema migrations for the bewhere ETL.
//
// The schema owns the natural-key uniqueness constraints the loaders rely on
// for their upsert existence checks: a boundary is unique per (code, level), a
// population figure per (department_code, year), and a crime observation per
// (department_code, category, source, year, month).
package migrations

import (
	"embed"
	"fmt"
	"strings"
)

// FS holds the embedded up/down migration pairs, consumed through the iofs
// source driver of golang-migrate.
//
//go:embed *.sql
var FS embed.FS

// Validate checks that every migration file follows the golang-migrate naming
// convention and that each up migration has a matching down migration.
func Validate() error {
	entries, err := FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	ups := make(map[string]bool)
	downs := make(map[string]bool)

	for _, entry := range entries {
		name := entry.Name()

		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			return fmt.Errorf("unexpected migration file name: %s", name)
		}
	}

	for base := range ups {
		if !downs[base] {
			return fmt.Errorf("migration %s has no down migration", base)
		}
	}

	for base := range downs {
		if !ups[base] {
			return fmt.Errorf("migration %s has no up migration", base)
		}
	}

	return nil
}
