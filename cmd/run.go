// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"xraysync/connector/internal/config"
	"xraysync/connector/internal/errors"
	"xraysync/connector/internal/keychain"
	"xraysync/connector/internal/logging"
	"xraysync/connector/internal/table"
	"xraysync/connector/internal/transform"
	"xraysync/connector/internal/xray"
)

var (
	runDataDir    string
	runParamsFile string
	runInput      string
	runOutput     string
	runDest       string
	runPrimaryKey []string
	runDebug      bool
)

// runCmd executes the ETL job: load configuration, authenticate against the
// Xray Cloud API, process the input table row by row, and write the output
// table plus its manifest.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connector job",
	Long: `The run command executes the three-phase connector job: it loads and
validates the configuration, authenticates with the Xray Cloud API, processes
the input table one row at a time, and writes the augmented output table with
its load manifest.

By default the platform data directory layout is used: <data-dir>/config.json
holds parameters and table mappings, input tables live under in/tables and
output tables are written under out/tables. Passing --params runs the same
job outside the platform with a local YAML parameter file and explicit
--input/--output CSV paths.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if runParamsFile != "" {
			return runLocal(cmd)
		}
		return runPlatform(cmd)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Platform data directory (default /data, or the last used directory)")
	runCmd.Flags().StringVar(&runParamsFile, "params", "", "Local YAML parameter file (enables local mode)")
	runCmd.Flags().StringVar(&runInput, "input", "", "Input CSV path (local mode)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "Output CSV path (local mode)")
	runCmd.Flags().StringVar(&runDest, "destination", "", "Destination table identity for the manifest (local mode)")
	runCmd.Flags().StringSliceVar(&runPrimaryKey, "primary-key", nil, "Output primary key columns (local mode, required for incremental)")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Raise log verbosity")
	rootCmd.AddCommand(runCmd)
}

// runPlatform executes the job against the platform data directory layout.
func runPlatform(cmd *cobra.Command) error {
	ctx := cmd.Context()

	settings, _ := config.LoadSettings()
	dataDir := runDataDir
	if dataDir == "" {
		dataDir = settings.DataDir
	}
	if dataDir == "" {
		dataDir = "/data"
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	params := &cfg.Parameters

	applyKeychainFallback(params)
	logging.Setup(debugEnabled(runDebug, settings, params))

	if err := params.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	logParameters(params)

	client, err := buildClient(params)
	if err != nil {
		return err
	}
	if err := client.Authenticate(ctx); err != nil {
		return err
	}

	if n := len(cfg.Storage.Input.Tables); n > 1 {
		logging.L().Debug("more than one input table mapped, processing the first one",
			logging.Args("tables", n))
	}
	in := cfg.Storage.Input.Tables[0]
	inputPath := table.InputTablePath(dataDir, in.Destination)
	logging.L().Debug("processing input table",
		logging.Args("source", in.Source, "file", inputPath))

	t, err := table.ReadCSV(inputPath)
	if err != nil {
		return err
	}

	stats, err := processRows(cmd, client, t, params)
	if err != nil {
		return err
	}

	if n := len(cfg.Storage.Output.Tables); n > 1 {
		logging.L().Debug("more than one output table defined, using the first one",
			logging.Args("tables", n))
	}
	out := cfg.Storage.Output.Tables[0]
	outputPath := table.OutputTablePath(dataDir, out.Source)

	m := table.NewManifest(out.Destination, t.Columns)
	m.PrimaryKey = out.PrimaryKey
	m.Incremental = params.Incremental

	if err := writeOutputs(outputPath, t, m); err != nil {
		return err
	}

	// Remember the data dir and verbosity so subsequent runs default to them.
	settings.DataDir = dataDir
	settings.Debug = params.Debug
	_ = config.SaveSettings(settings)

	pterm.Success.Printf("Processed %d rows (%d queried, %d skipped, %d failed)\n",
		stats.Rows, stats.Queried, stats.Skipped, stats.Failed)
	return nil
}

// runLocal executes the job with a local YAML parameter file and explicit
// input/output paths, outside the platform directory contract.
func runLocal(cmd *cobra.Command) error {
	ctx := cmd.Context()

	params, err := config.LoadParamsFile(runParamsFile)
	if err != nil {
		return err
	}

	applyKeychainFallback(&params)
	logging.Setup(debugEnabled(runDebug, config.Settings{}, &params))

	if err := params.Validate(); err != nil {
		return err
	}
	if runInput == "" || runOutput == "" {
		return errors.New(errors.ConfigInvalid, "local mode requires --input and --output paths")
	}
	if params.Incremental && len(runPrimaryKey) == 0 {
		return errors.New(errors.ConfigInvalid,
			"incremental loading requested but no --primary-key columns were given")
	}
	logParameters(&params)

	client, err := buildClient(&params)
	if err != nil {
		return err
	}
	if err := client.Authenticate(ctx); err != nil {
		return err
	}

	t, err := table.ReadCSV(runInput)
	if err != nil {
		return err
	}

	stats, err := processRows(cmd, client, t, &params)
	if err != nil {
		return err
	}

	dest := runDest
	if dest == "" {
		dest = "out.c-xraysync." + strings.TrimSuffix(filepath.Base(runOutput), ".csv")
	}
	m := table.NewManifest(dest, t.Columns)
	m.PrimaryKey = runPrimaryKey
	m.Incremental = params.Incremental

	if err := writeOutputs(runOutput, t, m); err != nil {
		return err
	}

	pterm.Success.Printf("Processed %d rows (%d queried, %d skipped, %d failed)\n",
		stats.Rows, stats.Queried, stats.Skipped, stats.Failed)
	return nil
}

// processRows drives the transform loop with the cursor hidden, so per-row
// debug output does not fight the terminal cursor.
func processRows(cmd *cobra.Command, client transform.Querier, t *table.Table, p *config.Parameters) (transform.Stats, error) {
	cursor.Hide()
	defer cursor.Show()

	return transform.Run(cmd.Context(), client, t, transform.Options{
		InputColumn:    p.InputColumn,
		OutputColumn:   p.OutputColumn,
		TriggerColumn:  p.TriggerColumn,
		TriggerValue:   p.TriggerValue,
		ParamMode:      p.ParamMode,
		Fixed:          xray.QueryParams{ProjectID: p.ProjectID, FolderPath: p.FolderPath, JQL: p.JQLQuery},
		ResultShape:    p.ResultShape,
		RowErrorPolicy: p.RowErrorPolicy,
	})
}

// debugEnabled resolves the run verbosity from the --debug flag, the
// configured debug parameter, and the persisted default from the last run.
func debugEnabled(flag bool, s config.Settings, p *config.Parameters) bool {
	return flag || p.Debug || s.Debug
}

// buildClient constructs the Xray API client from validated parameters.
func buildClient(p *config.Parameters) (*xray.Client, error) {
	opts := xray.Options{
		Variables: xray.VariablesMode(p.VariablesEncoding),
		Shape:     xray.ResultShape(p.ResultShape),
	}
	if p.Proxy != nil {
		opts.ProxyURL = p.Proxy.URL()
	}
	return xray.New(p.ClientID, p.ClientSecret, opts)
}

// applyKeychainFallback fills a missing credential pair from the OS keychain,
// where the login command stores it. Configured values always win.
func applyKeychainFallback(p *config.Parameters) {
	if p.ClientID != "" && p.ClientSecret != "" {
		return
	}
	km, err := keychain.GetManager()
	if err != nil {
		return
	}
	id, secret, err := km.LoadCredentials()
	if err != nil {
		return
	}
	p.ApplyCredentialFallback(id, secret)
}

// writeOutputs writes the output CSV and its manifest. Partial output is not
// useful to the platform, so any failure here aborts the run.
func writeOutputs(path string, t *table.Table, m table.Manifest) error {
	logging.L().Debug("writing output table",
		logging.Args("file", path, "rows", len(t.Rows), "destination", m.Destination))
	if err := table.WriteCSV(path, t); err != nil {
		return err
	}
	if err := table.WriteManifest(path, m); err != nil {
		return err
	}
	logging.L().Debug("manifest file written", logging.Args("file", path+".manifest"))
	return nil
}

// logParameters logs the validated parameter surface, credentials masked to
// their last characters only.
func logParameters(p *config.Parameters) {
	logging.L().Info("configuration loaded",
		logging.Args(
			"incremental", p.Incremental,
			"param_mode", p.ParamMode,
			"input_column", p.InputColumn,
			"output_column", p.OutputColumn,
			"result_shape", p.ResultShape,
			"row_error_policy", p.RowErrorPolicy,
		))
	proxy := "direct"
	if p.Proxy != nil {
		proxy = fmt.Sprintf("%s:%d", p.Proxy.Host, p.Proxy.Port)
	}
	logging.L().Debug("credential and transport settings",
		logging.Args(
			"client_id", logging.MaskTail(p.ClientID, 5),
			"client_secret", logging.MaskTail(p.ClientSecret, 5),
			"proxy", proxy,
			"variables_encoding", p.VariablesEncoding,
		))
}
