// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"xraysync/connector/internal/errors"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config.json: %v", err)
	}
}

const validConfig = `{
  "parameters": {
    "debug": true,
    "#xray_client_id": "id-12345",
    "#xray_client_secret": "secret-67890",
    "input_column_name": "q",
    "output_column_name": "result",
    "trigger_column": "AUTO_DATA_AUTOMATICALLY"
  },
  "storage": {
    "input": {"tables": [{"source": "in.c-main.tests", "destination": "tests.csv"}]},
    "output": {"tables": [{"source": "result.csv", "destination": "out.c-main.result", "primary_key": ["id"]}]}
  }
}`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, validConfig)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p := cfg.Parameters

	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if p.ParamMode != ParamModePerRow {
		t.Errorf("ParamMode = %q, want per_row default", p.ParamMode)
	}
	if p.ResultShape != ResultCount {
		t.Errorf("ResultShape = %q, want count default", p.ResultShape)
	}
	if p.VariablesEncoding != VariablesOmit {
		t.Errorf("VariablesEncoding = %q, want omit default", p.VariablesEncoding)
	}
	if p.RowErrorPolicy != RowErrorNull {
		t.Errorf("RowErrorPolicy = %q, want null default", p.RowErrorPolicy)
	}
	if p.TriggerValue != "Y" {
		t.Errorf("TriggerValue = %q, want Y default", p.TriggerValue)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("Load() succeeded, want missing-file error")
	}
	if !errors.Is(err, errors.ConfigInvalid) {
		t.Errorf("error kind = %v, want config_invalid", err)
	}
}

func TestValidateReportsEveryMissingField(t *testing.T) {
	p := Parameters{}
	p.applyDefaults()

	err := p.Validate()
	if err == nil {
		t.Fatal("Validate() succeeded, want error")
	}
	for _, want := range []string{"#xray_client_id", "#xray_client_secret", "input_column_name", "output_column_name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %v does not name %s", err, want)
		}
	}
}

func TestValidateEnums(t *testing.T) {
	base := Parameters{
		ClientID:     "id",
		ClientSecret: "secret",
		InputColumn:  "q",
		OutputColumn: "result",
	}

	tests := []struct {
		name   string
		mutate func(*Parameters)
		ok     bool
	}{
		{name: "valid defaults", mutate: func(p *Parameters) {}, ok: true},
		{name: "bad param mode", mutate: func(p *Parameters) { p.ParamMode = "sometimes" }, ok: false},
		{name: "bad result shape", mutate: func(p *Parameters) { p.ResultShape = "huge" }, ok: false},
		{name: "bad row error policy", mutate: func(p *Parameters) { p.RowErrorPolicy = "panic" }, ok: false},
		{name: "fixed mode needs project id", mutate: func(p *Parameters) { p.ParamMode = ParamModeFixed }, ok: false},
		{
			name: "fixed mode with project id",
			mutate: func(p *Parameters) {
				p.ParamMode = ParamModeFixed
				p.ProjectID = "PROJ1"
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.applyDefaults()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error: %v, want success", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestValidateProxy(t *testing.T) {
	base := Parameters{
		ClientID:     "id",
		ClientSecret: "secret",
		InputColumn:  "q",
		OutputColumn: "result",
	}

	t.Run("partial proxy is an error", func(t *testing.T) {
		p := base
		p.applyDefaults()
		p.Proxy = &Proxy{Host: "proxy.corp"}
		if err := p.Validate(); err == nil {
			t.Error("Validate() succeeded with proxy host but no port")
		}
	})

	t.Run("complete proxy is accepted", func(t *testing.T) {
		p := base
		p.applyDefaults()
		p.Proxy = &Proxy{Host: "proxy.corp", Port: 8080}
		if err := p.Validate(); err != nil {
			t.Errorf("Validate() error: %v", err)
		}
		if got := p.Proxy.URL(); got != "http://proxy.corp:8080" {
			t.Errorf("Proxy.URL() = %q, want %q", got, "http://proxy.corp:8080")
		}
	})

	t.Run("required proxy must be configured", func(t *testing.T) {
		p := base
		p.applyDefaults()
		p.RequireProxy = true
		err := p.Validate()
		if err == nil {
			t.Fatal("Validate() succeeded, want missing-proxy error")
		}
		if !strings.Contains(err.Error(), "proxy") {
			t.Errorf("error = %v, want proxy mentioned", err)
		}
	})
}

func TestValidateStorage(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantMessage string
	}{
		{
			name:        "no input tables",
			cfg:         Config{},
			wantMessage: "no input tables",
		},
		{
			name: "no output tables",
			cfg: Config{
				Storage: Storage{Input: TableList{Tables: []TableMapping{{Source: "a", Destination: "a.csv"}}}},
			},
			wantMessage: "no output tables",
		},
		{
			name: "incremental without primary key",
			cfg: Config{
				Parameters: Parameters{Incremental: true},
				Storage: Storage{
					Input:  TableList{Tables: []TableMapping{{Source: "a", Destination: "a.csv"}}},
					Output: TableList{Tables: []TableMapping{{Source: "r.csv", Destination: "out.c-main.r"}}},
				},
			},
			wantMessage: "primary key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateStorage()
			if err == nil {
				t.Fatal("ValidateStorage() succeeded, want error")
			}
			if !errors.Is(err, errors.ConfigInvalid) {
				t.Errorf("error kind = %v, want config_invalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantMessage) {
				t.Errorf("error = %v, want %q in message", err, tt.wantMessage)
			}
		})
	}

	t.Run("incremental with primary key", func(t *testing.T) {
		cfg := Config{
			Parameters: Parameters{Incremental: true},
			Storage: Storage{
				Input:  TableList{Tables: []TableMapping{{Source: "a", Destination: "a.csv"}}},
				Output: TableList{Tables: []TableMapping{{Source: "r.csv", Destination: "out.c-main.r", PrimaryKey: []string{"id"}}}},
			},
		}
		if err := cfg.ValidateStorage(); err != nil {
			t.Errorf("ValidateStorage() error: %v", err)
		}
	})
}

func TestLoadParamsFileMatchesPlatformConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "params.yaml")
	yamlContent := `
debug: true
client_id: id-12345
client_secret: secret-67890
input_column: q
output_column: result
trigger_column: AUTO_DATA_AUTOMATICALLY
`
	if err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write params.yaml: %v", err)
	}

	fromYAML, err := LoadParamsFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadParamsFile() error: %v", err)
	}

	writeConfig(t, dir, validConfig)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if diff := cmp.Diff(cfg.Parameters, fromYAML); diff != "" {
		t.Errorf("YAML and platform parameters differ (-json +yaml):\n%s", diff)
	}
}

func TestApplyCredentialFallback(t *testing.T) {
	p := Parameters{ClientID: "configured"}
	p.ApplyCredentialFallback("keychain-id", "keychain-secret")
	if p.ClientID != "configured" {
		t.Errorf("ClientID = %q, configured value must win", p.ClientID)
	}
	if p.ClientSecret != "keychain-secret" {
		t.Errorf("ClientSecret = %q, want keychain fallback", p.ClientSecret)
	}
}
