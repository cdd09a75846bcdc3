// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"xraysync/connector/internal/keychain"
)

// logoutCmd removes the stored Xray credential pair from the OS keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored Xray Cloud API credentials",
	Long: `The logout command removes the Xray Cloud client ID and client secret from
the OS keychain. Subsequent local runs must carry the credentials in the
parameter file, or login again first.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if km, err := keychain.GetManager(); err == nil {
			_ = km.ClearCredentials()
		}
		fmt.Println("Stored credentials have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
