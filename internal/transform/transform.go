// Package transform drives one API call per input row and guarantees that a
// single row's failure never aborts the batch. Rows are processed strictly
// sequentially and mutated in place: every row gets the output column set
// exactly once, in input order, whether it was queried, skipped or failed.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"xraysync/connector/internal/config"
	"xraysync/connector/internal/logging"
	"xraysync/connector/internal/table"
	"xraysync/connector/internal/xray"
)

// Querier is the API surface the loop needs. *xray.Client satisfies it;
// tests substitute a counting fake.
type Querier interface {
	QueryTests(ctx context.Context, p xray.QueryParams) (*xray.Result, error)
}

// Options configures the row loop from validated parameters.
type Options struct {
	InputColumn  string
	OutputColumn string
	// TriggerColumn, when set, restricts querying to rows whose trigger cell
	// equals TriggerValue (case-insensitive, trimmed). When unset, any row
	// with a non-empty input cell is queried.
	TriggerColumn string
	TriggerValue  string

	ParamMode config.ParamMode
	// Fixed holds the query parameters used for every row in fixed mode.
	Fixed xray.QueryParams

	ResultShape    config.ResultShape
	RowErrorPolicy config.RowErrorPolicy
}

// Stats summarizes one run of the loop.
type Stats struct {
	Rows    int
	Queried int
	Skipped int
	Failed  int
}

// Run processes every row of t, writing the result marker into the output
// column. It fails only on schema-level problems (missing required columns);
// per-row parse and API errors are isolated into the row's marker value.
func Run(ctx context.Context, client Querier, t *table.Table, opts Options) (Stats, error) {
	var stats Stats

	if err := t.RequireColumn(opts.InputColumn); err != nil {
		return stats, err
	}
	if opts.TriggerColumn != "" {
		if err := t.RequireColumn(opts.TriggerColumn); err != nil {
			return stats, err
		}
	}
	if existed := t.EnsureColumn(opts.OutputColumn); existed {
		logging.L().Warn("output column already exists in the input and will be overwritten",
			logging.Args("column", opts.OutputColumn))
	}

	for i, row := range t.Rows {
		rowNum := i + 1
		stats.Rows++

		if skip, reason := shouldSkip(row, opts); skip {
			logging.L().Debug("skipping row", logging.Args("row", rowNum, "reason", reason))
			row[opts.OutputColumn] = ""
			stats.Skipped++
			continue
		}

		params, err := rowParams(row, opts)
		if err != nil {
			// Malformed per-row parameters are a local problem: mark and move on.
			logging.L().Error("failed to parse row parameters",
				logging.Args("row", rowNum, "input", row[opts.InputColumn], "error", err.Error()))
			row[opts.OutputColumn] = ""
			stats.Failed++
			continue
		}

		res, err := client.QueryTests(ctx, params)
		if err != nil {
			logging.L().Error("Xray API call failed",
				logging.Args("row", rowNum, "project", params.ProjectID,
					"folder", params.FolderPath, "jql", params.JQL, "error", err.Error()))
			row[opts.OutputColumn] = errorMarker(err, opts.RowErrorPolicy)
			stats.Failed++
			continue
		}

		row[opts.OutputColumn] = renderResult(res, opts.ResultShape)
		stats.Queried++
		logging.L().Debug("row processed", logging.Args("row", rowNum, "total", res.Total))
	}

	logging.L().Info("finished processing rows",
		logging.Args("rows", stats.Rows, "queried", stats.Queried,
			"skipped", stats.Skipped, "failed", stats.Failed))
	return stats, nil
}

// shouldSkip applies the per-row skip policy: a trigger column mismatch, or
// an empty input cell when no trigger column is configured.
func shouldSkip(row map[string]string, opts Options) (bool, string) {
	if opts.TriggerColumn != "" {
		flag := strings.ToUpper(strings.TrimSpace(row[opts.TriggerColumn]))
		want := strings.ToUpper(strings.TrimSpace(opts.TriggerValue))
		if flag != want {
			return true, fmt.Sprintf("%s is %q", opts.TriggerColumn, flag)
		}
	}
	if opts.ParamMode == config.ParamModePerRow && strings.TrimSpace(row[opts.InputColumn]) == "" {
		return true, "input column is empty"
	}
	return false, ""
}

// rowParams derives the query parameters for one row: the fixed configured
// values, or a 3-element JSON array [projectId, folderPath, jqlQuery] parsed
// from the input column.
func rowParams(row map[string]string, opts Options) (xray.QueryParams, error) {
	if opts.ParamMode == config.ParamModeFixed {
		return opts.Fixed, nil
	}
	return parseParamsArray(row[opts.InputColumn])
}

// parseParamsArray parses [projectId, folderPath, jqlQuery]. The project id
// is mandatory and non-empty after trimming; the other two elements are
// optional and empty-if-null.
func parseParamsArray(raw string) (xray.QueryParams, error) {
	var p xray.QueryParams

	var arr []any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &arr); err != nil {
		return p, fmt.Errorf("input is not valid JSON: %w", err)
	}
	if len(arr) != 3 {
		return p, fmt.Errorf("input must be a JSON array with exactly 3 elements, got %d", len(arr))
	}

	element := func(v any) string {
		s, _ := v.(string)
		return strings.TrimSpace(s)
	}

	p.ProjectID = element(arr[0])
	if p.ProjectID == "" {
		return p, fmt.Errorf("project ID is required and cannot be empty")
	}
	p.FolderPath = element(arr[1])
	p.JQL = element(arr[2])
	return p, nil
}

// renderResult turns a query result into the output cell value.
func renderResult(res *xray.Result, shape config.ResultShape) string {
	if shape == config.ResultFull {
		return string(res.Data)
	}
	return strconv.Itoa(res.Total)
}

// errorMarker encodes a failed row per the configured policy: an empty
// value, or an explicit API_ERROR string carrying the failure detail.
func errorMarker(err error, policy config.RowErrorPolicy) string {
	if policy == config.RowErrorMessage {
		return "API_ERROR: " + logging.Mask(err.Error())
	}
	return ""
}
