// Package config loads and validates the connector configuration.
//
// Two sources are supported: the platform data directory layout, where
// <data-dir>/config.json carries a "parameters" object plus "storage"
// input/output table mappings, and a local YAML parameter file for running
// the connector outside the platform. Both produce the same Parameters
// struct and go through the same validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"xraysync/connector/internal/errors"
)

// ParamMode selects where query parameters come from.
type ParamMode string

// ResultShape selects what the output column carries.
type ResultShape string

// VariablesEncoding selects how optional GraphQL variables are sent.
type VariablesEncoding string

// RowErrorPolicy selects the marker written for a failed row.
type RowErrorPolicy string

const (
	// ParamModePerRow parses [projectId, folderPath, jqlQuery] from the input column.
	ParamModePerRow ParamMode = "per_row"
	// ParamModeFixed uses project_id/folder_path/jql_query from configuration.
	ParamModeFixed ParamMode = "fixed"

	// ResultCount writes only the integer test total.
	ResultCount ResultShape = "count"
	// ResultFull writes the serialized GraphQL data object.
	ResultFull ResultShape = "full"

	// VariablesOmit leaves empty optional variables out of the payload.
	VariablesOmit VariablesEncoding = "omit"
	// VariablesNull always sends folder and passes jql as null when empty.
	VariablesNull VariablesEncoding = "null"

	// RowErrorNull writes an empty value for a failed row.
	RowErrorNull RowErrorPolicy = "null"
	// RowErrorMessage writes "API_ERROR: <detail>" for a failed row.
	RowErrorMessage RowErrorPolicy = "message"
)

// Proxy holds an outbound HTTP proxy address. When configured, every request
// to both API endpoints is routed through it. Host and port must be set
// together; a partial pair is a configuration error.
type Proxy struct {
	Host string `json:"host" yaml:"host" validate:"required"`
	Port int    `json:"port" yaml:"port" validate:"required,min=1,max=65535"`
}

// URL returns the proxy address as an http URL string.
func (p *Proxy) URL() string {
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}

// Parameters is the flat connector parameter surface. Fields prefixed with
// "#" in the platform config are encrypted at rest there; they are plain
// strings here and must never be logged unmasked.
type Parameters struct {
	Debug        bool   `json:"debug" yaml:"debug"`
	Incremental  bool   `json:"incremental" yaml:"incremental"`
	ClientID     string `json:"#xray_client_id" yaml:"client_id" validate:"required"`
	ClientSecret string `json:"#xray_client_secret" yaml:"client_secret" validate:"required"`

	InputColumn  string `json:"input_column_name" yaml:"input_column" validate:"required"`
	OutputColumn string `json:"output_column_name" yaml:"output_column" validate:"required"`

	ParamMode  ParamMode `json:"param_mode" yaml:"param_mode" validate:"omitempty,oneof=per_row fixed"`
	ProjectID  string    `json:"project_id" yaml:"project_id" validate:"required_if=ParamMode fixed"`
	FolderPath string    `json:"folder_path" yaml:"folder_path"`
	JQLQuery   string    `json:"jql_query" yaml:"jql_query"`

	TriggerColumn string `json:"trigger_column" yaml:"trigger_column"`
	TriggerValue  string `json:"trigger_value" yaml:"trigger_value"`

	ResultShape       ResultShape       `json:"result_shape" yaml:"result_shape" validate:"omitempty,oneof=count full"`
	VariablesEncoding VariablesEncoding `json:"variables_encoding" yaml:"variables_encoding" validate:"omitempty,oneof=omit null"`
	RowErrorPolicy    RowErrorPolicy    `json:"row_error_policy" yaml:"row_error_policy" validate:"omitempty,oneof=null message"`

	RequireProxy bool   `json:"require_proxy" yaml:"require_proxy"`
	Proxy        *Proxy `json:"proxy" yaml:"proxy"`
}

// TableMapping describes one input or output table in the storage mapping.
type TableMapping struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Columns     []string `json:"columns,omitempty"`
	PrimaryKey  []string `json:"primary_key,omitempty"`
}

// TableList wraps the tables array of an input or output mapping.
type TableList struct {
	Tables []TableMapping `json:"tables"`
}

// Storage holds the platform input/output table mappings.
type Storage struct {
	Input  TableList `json:"input"`
	Output TableList `json:"output"`
}

// Config is the full platform configuration file.
type Config struct {
	Parameters Parameters `json:"parameters"`
	Storage    Storage    `json:"storage"`
}

// Global validator instance
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates <dataDir>/config.json.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, fmt.Sprintf("cannot read %s", path), err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, "config.json is not valid JSON", err)
	}

	c.Parameters.applyDefaults()
	return &c, nil
}

// LoadParamsFile reads a local YAML parameter file into Parameters.
// The file uses the same option names as the platform parameters, without
// the "#" prefixes.
func LoadParamsFile(path string) (Parameters, error) {
	var p Parameters
	data, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrap(errors.ConfigInvalid, fmt.Sprintf("cannot read %s", path), err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, errors.Wrap(errors.ConfigInvalid, "parameter file is not valid YAML", err)
	}
	p.applyDefaults()
	return p, nil
}

// applyDefaults fills optional enum and trigger fields with their defaults.
func (p *Parameters) applyDefaults() {
	if p.ParamMode == "" {
		p.ParamMode = ParamModePerRow
	}
	if p.ResultShape == "" {
		p.ResultShape = ResultCount
	}
	if p.VariablesEncoding == "" {
		p.VariablesEncoding = VariablesOmit
	}
	if p.RowErrorPolicy == "" {
		p.RowErrorPolicy = RowErrorNull
	}
	if p.TriggerValue == "" {
		p.TriggerValue = "Y"
	}
}

// ApplyCredentialFallback fills an empty credential pair from another source
// (the OS keychain). Configured values always win.
func (p *Parameters) ApplyCredentialFallback(clientID, clientSecret string) {
	if p.ClientID == "" {
		p.ClientID = clientID
	}
	if p.ClientSecret == "" {
		p.ClientSecret = clientSecret
	}
}

// Validate checks the parameter surface. It collects every struct-tag
// violation into one message so the operator can fix the configuration in a
// single pass, then applies the cross-field rules tags cannot express.
func (p *Parameters) Validate() error {
	if err := validate.Struct(p); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.Wrap(errors.Unexpected, "parameter validation", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: %s", paramName(e.Field()), validationMessage(e)))
		}
		return errors.New(errors.ConfigInvalid, "validation error: "+strings.Join(msgs, ", "))
	}

	if p.RequireProxy && p.Proxy == nil {
		return errors.New(errors.ConfigInvalid, "proxy is required but host and port are not configured")
	}
	return nil
}

// ValidateStorage checks the table mappings and the incremental contract:
// exactly one input and one output mapping are used, and incremental loading
// needs a primary key on the output table.
func (c *Config) ValidateStorage() error {
	if len(c.Storage.Input.Tables) == 0 {
		return errors.New(errors.ConfigInvalid, "no input tables found, map exactly one input table")
	}
	if len(c.Storage.Output.Tables) == 0 {
		return errors.New(errors.ConfigInvalid, "no output tables defined, map at least one output table")
	}
	if c.Parameters.Incremental && len(c.Storage.Output.Tables[0].PrimaryKey) == 0 {
		return errors.New(errors.ConfigInvalid,
			"incremental loading requested but no primary key is defined in the output table mapping")
	}
	return nil
}

// paramName maps a struct field name back to its configuration option name.
func paramName(field string) string {
	names := map[string]string{
		"ClientID":          "#xray_client_id",
		"ClientSecret":      "#xray_client_secret",
		"InputColumn":       "input_column_name",
		"OutputColumn":      "output_column_name",
		"ParamMode":         "param_mode",
		"ProjectID":         "project_id",
		"FolderPath":        "folder_path",
		"JQLQuery":          "jql_query",
		"TriggerColumn":     "trigger_column",
		"TriggerValue":      "trigger_value",
		"ResultShape":       "result_shape",
		"VariablesEncoding": "variables_encoding",
		"RowErrorPolicy":    "row_error_policy",
		"Host":              "proxy.host",
		"Port":              "proxy.port",
	}
	if n, ok := names[field]; ok {
		return n
	}
	return field
}

// validationMessage renders a validator tag as a short human message.
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "required_if":
		return "required in fixed parameter mode"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(e.Param(), " ", ", ")
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	default:
		return "invalid value"
	}
}
