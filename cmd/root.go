// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the xraysync connector.
// It implements the ETL run command plus credential management subcommands
// using the Cobra CLI framework, and maps typed errors to the platform's
// process exit codes: 0 success, 1 user/configuration error, 2 unexpected.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xraysync/connector/internal/errors"
	"xraysync/connector/internal/httperrors"
	"xraysync/connector/internal/logging"
)

var (
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "xraysync",
	Short:         "ETL connector that augments table rows with Xray Cloud test data",
	Long:          `Xraysync reads a tabular input file, queries the Xray Cloud test-management API per row, and writes an augmented output table plus a load manifest for the hosted platform.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("xraysync %s\n", Version)
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application. Network failures get a troubleshooting
// display; everything else is printed masked. The error is converted to the
// platform exit code either way.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if httperrors.IsTransient(err) || httperrors.IsTLS(err) {
			_ = httperrors.FormatNetworkError(err, "contacting the Xray Cloud API")
		} else {
			fmt.Fprintln(os.Stderr, logging.Mask(err.Error()))
		}
		os.Exit(errors.ExitCode(err))
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show version information")
}
