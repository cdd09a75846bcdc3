// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package table implements the connector's tabular I/O boundary: reading the
// input CSV, writing the augmented output CSV, and writing the sidecar
// manifest the platform consumes. Row order is preserved end to end; the
// output carries exactly the input columns plus the designated result column.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"xraysync/connector/internal/errors"
)

// Table is an in-memory tabular file: an ordered column set and rows mapping
// column name to string value, in input order.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// InputTablePath returns the platform path of a mapped input table.
func InputTablePath(dataDir, name string) string {
	return filepath.Join(dataDir, "in", "tables", name)
}

// OutputTablePath returns the platform path of a mapped output table.
func OutputTablePath(dataDir, name string) string {
	return filepath.Join(dataDir, "out", "tables", name)
}

// ReadCSV reads a delimited file with a header row. The file must exist,
// carry a header, and contain at least one data row.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.IOFailed,
				"input file not found, check the input mapping and source table", err)
		}
		return nil, errors.Wrap(errors.IOFailed, fmt.Sprintf("cannot open %s", path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New(errors.ConfigInvalid, "input table is empty, a header row is required")
		}
		return nil, errors.Wrap(errors.IOFailed, "read input header", err)
	}

	t := &Table{Columns: header}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.IOFailed,
				fmt.Sprintf("read input row %d", len(t.Rows)+1), err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}

	if len(t.Rows) == 0 {
		return nil, errors.New(errors.ConfigInvalid, "input table has no data rows")
	}
	return t, nil
}

// RequireColumn fails when the named column is not present, listing the
// available columns for diagnosis.
func (t *Table) RequireColumn(name string) error {
	for _, c := range t.Columns {
		if c == name {
			return nil
		}
	}
	return errors.New(errors.ConfigInvalid, fmt.Sprintf(
		"input table is missing the required input column %q, available columns: %s",
		name, strings.Join(t.Columns, ", ")))
}

// EnsureColumn appends the named column to the schema unless it already
// exists. It reports whether the column was already present, so the caller
// can warn about the overwrite.
func (t *Table) EnsureColumn(name string) (existed bool) {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	t.Columns = append(t.Columns, name)
	return false
}

// WriteCSV writes the table to path with a header row, columns in schema
// order and rows in input order. Missing cell values are written empty.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.IOFailed, "create output directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.IOFailed, fmt.Sprintf("cannot create %s", path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return errors.Wrap(errors.IOFailed, "write output header", err)
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j, col := range t.Columns {
			record[j] = row[col]
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(errors.IOFailed, fmt.Sprintf("write output row %d", i+1), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.IOFailed, "flush output file", err)
	}
	return f.Close()
}
