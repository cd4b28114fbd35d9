package datasets

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrEmptyTable is returned when a delimited file holds no header row.
	ErrEmptyTable = errors.New("delimited file has no header row")
)

// ReadTable reads a delimited file into one map per data row, keyed by the
// lowercased header names. French statistical publications use semicolons as
// separators; the delimiter is sniffed from the header line so both semicolon
// and comma files load without per-provider configuration.
func ReadTable(path string) ([]map[string]string, error) {
	file, err := os.Open(path) //nolint:gosec // path comes from the fetch cache
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	reader := bufio.NewReader(file)

	headerLine, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if strings.TrimSpace(headerLine) == "" {
		return nil, ErrEmptyTable
	}

	delimiter := ','
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		delimiter = ';'
	}

	parse := csv.NewReader(strings.NewReader(headerLine))
	parse.Comma = delimiter

	header, err := parse.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	for i, column := range header {
		header[i] = strings.ToLower(strings.TrimSpace(column))
	}

	body := csv.NewReader(reader)
	body.Comma = delimiter
	body.FieldsPerRecord = -1 // upstream files trail ragged rows; tolerate them

	var rows []map[string]string

	for {
		fields, err := body.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(rows)+1, err)
		}

		row := make(map[string]string, len(header))

		for i, column := range header {
			if i < len(fields) {
				row[column] = strings.TrimSpace(fields[i])
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}
