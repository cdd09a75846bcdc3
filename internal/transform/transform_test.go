// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"xraysync/connector/internal/config"
	"xraysync/connector/internal/errors"
	"xraysync/connector/internal/table"
	"xraysync/connector/internal/xray"
)

// fakeQuerier records every call and replies with a fixed total or error.
type fakeQuerier struct {
	calls []xray.QueryParams
	total int
	err   error
}

func (f *fakeQuerier) QueryTests(_ context.Context, p xray.QueryParams) (*xray.Result, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return &xray.Result{
		Total: f.total,
		Data:  json.RawMessage(fmt.Sprintf(`{"getTests":{"total":%d}}`, f.total)),
	}, nil
}

func perRowOptions() Options {
	return Options{
		InputColumn:    "q",
		OutputColumn:   "result",
		TriggerColumn:  "flag",
		TriggerValue:   "Y",
		ParamMode:      config.ParamModePerRow,
		ResultShape:    config.ResultCount,
		RowErrorPolicy: config.RowErrorNull,
	}
}

func TestRunEndToEnd(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"flag", "q"},
		Rows: []map[string]string{
			{"flag": "Y", "q": `["PROJ1","","status=open"]`},
			{"flag": "N", "q": `["PROJ2","",""]`},
		},
	}
	client := &fakeQuerier{total: 7}

	stats, err := Run(context.Background(), client, tbl, perRowOptions())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	wantRows := []map[string]string{
		{"flag": "Y", "q": `["PROJ1","","status=open"]`, "result": "7"},
		{"flag": "N", "q": `["PROJ2","",""]`, "result": ""},
	}
	if diff := cmp.Diff(wantRows, tbl.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if len(client.calls) != 1 {
		t.Fatalf("API calls = %d, want 1 (skipped row must not call)", len(client.calls))
	}
	wantParams := xray.QueryParams{ProjectID: "PROJ1", JQL: "status=open"}
	if diff := cmp.Diff(wantParams, client.calls[0]); diff != "" {
		t.Errorf("query params mismatch (-want +got):\n%s", diff)
	}
	if stats.Queried != 1 || stats.Skipped != 1 || stats.Rows != 2 {
		t.Errorf("stats = %+v, want 1 queried, 1 skipped of 2", stats)
	}
}

func TestRunRowCountAndOrderPreserved(t *testing.T) {
	var rows []map[string]string
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]string{
			"flag": "Y",
			"id":   fmt.Sprintf("row-%d", i),
			"q":    fmt.Sprintf(`["PROJ%d","",""]`, i),
		})
	}
	tbl := &table.Table{Columns: []string{"flag", "id", "q"}, Rows: rows}
	client := &fakeQuerier{total: 1}

	stats, err := Run(context.Background(), client, tbl, perRowOptions())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if stats.Rows != 10 || len(tbl.Rows) != 10 {
		t.Fatalf("row count changed: stats.Rows = %d, len = %d", stats.Rows, len(tbl.Rows))
	}
	for i, row := range tbl.Rows {
		if want := fmt.Sprintf("row-%d", i); row["id"] != want {
			t.Errorf("row %d id = %q, want %q (order must be preserved)", i, row["id"], want)
		}
		if row["result"] != "1" {
			t.Errorf("row %d result = %q, want %q", i, row["result"], "1")
		}
	}
	for i, call := range client.calls {
		if want := fmt.Sprintf("PROJ%d", i); call.ProjectID != want {
			t.Errorf("call %d project = %q, want %q", i, call.ProjectID, want)
		}
	}
}

func TestRunIsolatesMalformedRowParams(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not JSON", input: "definitely not json"},
		{name: "wrong arity", input: `["PROJ1",""]`},
		{name: "too many elements", input: `["PROJ1","","",""]`},
		{name: "empty project id", input: `["  ","folder","jql"]`},
		{name: "non-array", input: `{"projectId":"PROJ1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := &table.Table{
				Columns: []string{"flag", "q"},
				Rows: []map[string]string{
					{"flag": "Y", "q": tt.input},
					{"flag": "Y", "q": `["PROJ9","",""]`},
				},
			}
			client := &fakeQuerier{total: 5}

			stats, err := Run(context.Background(), client, tbl, perRowOptions())
			if err != nil {
				t.Fatalf("Run() error: %v (malformed row must not abort the batch)", err)
			}
			if tbl.Rows[0]["result"] != "" {
				t.Errorf("malformed row result = %q, want empty marker", tbl.Rows[0]["result"])
			}
			if tbl.Rows[1]["result"] != "5" {
				t.Errorf("subsequent row result = %q, want %q", tbl.Rows[1]["result"], "5")
			}
			if len(client.calls) != 1 {
				t.Errorf("API calls = %d, want 1", len(client.calls))
			}
			if stats.Failed != 1 {
				t.Errorf("stats.Failed = %d, want 1", stats.Failed)
			}
		})
	}
}

func TestRunAPIErrorPolicies(t *testing.T) {
	apiErr := errors.New(errors.QueryFailed, "GraphQL request failed with status 500")

	tests := []struct {
		name   string
		policy config.RowErrorPolicy
		want   string
	}{
		{name: "null policy writes empty marker", policy: config.RowErrorNull, want: ""},
		{
			name:   "message policy writes explicit marker",
			policy: config.RowErrorMessage,
			want:   "API_ERROR: query_failed: GraphQL request failed with status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := &table.Table{
				Columns: []string{"flag", "q"},
				Rows: []map[string]string{
					{"flag": "Y", "q": `["PROJ1","",""]`},
					{"flag": "Y", "q": `["PROJ2","",""]`},
				},
			}
			client := &fakeQuerier{err: apiErr}
			opts := perRowOptions()
			opts.RowErrorPolicy = tt.policy

			stats, err := Run(context.Background(), client, tbl, opts)
			if err != nil {
				t.Fatalf("Run() error: %v (API failure must not abort the batch)", err)
			}
			for i, row := range tbl.Rows {
				if row["result"] != tt.want {
					t.Errorf("row %d result = %q, want %q", i, row["result"], tt.want)
				}
			}
			if stats.Failed != 2 {
				t.Errorf("stats.Failed = %d, want 2", stats.Failed)
			}
		})
	}
}

func TestRunFixedParamMode(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"flag", "q"},
		Rows: []map[string]string{
			{"flag": "Y", "q": "ignored"},
			{"flag": "y ", "q": "ignored"},
		},
	}
	client := &fakeQuerier{total: 12}
	opts := perRowOptions()
	opts.ParamMode = config.ParamModeFixed
	opts.Fixed = xray.QueryParams{ProjectID: "FIXED", FolderPath: "/Smoke"}

	_, err := Run(context.Background(), client, tbl, opts)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(client.calls) != 2 {
		t.Fatalf("API calls = %d, want 2 (trigger match is case-insensitive and trimmed)", len(client.calls))
	}
	for i, call := range client.calls {
		if call.ProjectID != "FIXED" || call.FolderPath != "/Smoke" {
			t.Errorf("call %d params = %+v, want fixed params", i, call)
		}
	}
}

func TestRunEmptyInputCellSkips(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"q"},
		Rows: []map[string]string{
			{"q": "   "},
			{"q": `["PROJ1","",""]`},
		},
	}
	client := &fakeQuerier{total: 2}
	opts := perRowOptions()
	opts.TriggerColumn = ""

	stats, err := Run(context.Background(), client, tbl, opts)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(client.calls) != 1 {
		t.Errorf("API calls = %d, want 1", len(client.calls))
	}
	if stats.Skipped != 1 {
		t.Errorf("stats.Skipped = %d, want 1", stats.Skipped)
	}
}

func TestRunMissingRequiredColumnAborts(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"other"},
		Rows:    []map[string]string{{"other": "x"}},
	}
	client := &fakeQuerier{}

	_, err := Run(context.Background(), client, tbl, perRowOptions())
	if err == nil {
		t.Fatal("Run() succeeded, want missing-column error")
	}
	if !errors.Is(err, errors.ConfigInvalid) {
		t.Errorf("error kind = %v, want config_invalid", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("API calls = %d, want 0 before validation", len(client.calls))
	}
}

func TestRunFullResultShape(t *testing.T) {
	tbl := &table.Table{
		Columns: []string{"flag", "q"},
		Rows:    []map[string]string{{"flag": "Y", "q": `["PROJ1","",""]`}},
	}
	client := &fakeQuerier{total: 4}
	opts := perRowOptions()
	opts.ResultShape = config.ResultFull

	_, err := Run(context.Background(), client, tbl, opts)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if want := `{"getTests":{"total":4}}`; tbl.Rows[0]["result"] != want {
		t.Errorf("result = %q, want serialized data object %q", tbl.Rows[0]["result"], want)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	build := func() *table.Table {
		return &table.Table{
			Columns: []string{"flag", "q"},
			Rows: []map[string]string{
				{"flag": "Y", "q": `["PROJ1","","status=open"]`},
				{"flag": "N", "q": `["PROJ2","",""]`},
				{"flag": "Y", "q": "broken"},
			},
		}
	}

	first := build()
	if _, err := Run(context.Background(), &fakeQuerier{total: 7}, first, perRowOptions()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	second := build()
	if _, err := Run(context.Background(), &fakeQuerier{total: 7}, second, perRowOptions()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated runs differ (-first +second):\n%s", diff)
	}
}
