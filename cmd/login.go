// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"xraysync/connector/internal/errors"
	"xraysync/connector/internal/keychain"
	"xraysync/connector/internal/logging"
	"xraysync/connector/internal/xray"
)

var (
	loginClientID string
	loginNoVerify bool
)

// loginCmd stores the Xray Cloud API credential pair in the OS keychain so
// local runs can omit the credentials from the parameter file. The secret is
// read interactively and never echoed; by default the pair is verified with
// one authentication round-trip before being saved.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Store Xray Cloud API credentials in the OS keychain",
	Long: `The login command stores an Xray Cloud client ID and client secret in the
OS keychain (macOS Keychain, Windows Credential Manager or the freedesktop
Secret Service). Local runs fall back to these credentials when the parameter
file omits them; platform configuration values always win.

The client secret is prompted for interactively and is not echoed. Unless
--no-verify is given, the pair is verified against the Xray Cloud
authentication endpoint before it is saved.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		clientID := strings.TrimSpace(loginClientID)
		if clientID == "" {
			entered, err := pterm.DefaultInteractiveTextInput.Show("Xray client ID")
			if err != nil {
				return err
			}
			clientID = strings.TrimSpace(entered)
		}
		if clientID == "" {
			return errors.New(errors.ConfigInvalid, "client ID must not be empty")
		}

		secret, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Xray client secret")
		if err != nil {
			return err
		}
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return errors.New(errors.ConfigInvalid, "client secret must not be empty")
		}

		logging.Setup(false)

		if !loginNoVerify {
			client, err := xray.New(clientID, secret, xray.Options{})
			if err != nil {
				return err
			}
			spinner, _ := pterm.DefaultSpinner.Start("Verifying credentials with Xray Cloud")
			if err := client.Authenticate(cmd.Context()); err != nil {
				spinner.Fail("Credential verification failed")
				return err
			}
			spinner.Success("Credentials verified")
		}

		km, err := keychain.GetManager()
		if err != nil {
			return errors.Wrap(errors.ConfigInvalid, "OS keychain unavailable", err)
		}
		if err := km.SaveCredentials(clientID, secret); err != nil {
			return errors.Wrap(errors.Unexpected, "store credentials in keychain", err)
		}

		pterm.Success.Printf("Credentials stored for client ID %s\n", logging.MaskTail(clientID, 5))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginClientID, "client-id", "", "Xray Cloud client ID (prompted when omitted)")
	loginCmd.Flags().BoolVar(&loginNoVerify, "no-verify", false, "Skip the authentication round-trip before saving")
	rootCmd.AddCommand(loginCmd)
}
