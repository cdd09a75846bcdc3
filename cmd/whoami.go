package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"xraysync/connector/internal/keychain"
	"xraysync/connector/internal/logging"
)

// whoamiCmd shows which Xray client ID is stored in the OS keychain, masked
// to its last characters.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored Xray Cloud client ID",
	Long: `The whoami command shows the Xray Cloud client ID currently stored in the
OS keychain, masked to its last characters. It is useful for checking which
credential pair local runs will fall back to.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := keychain.GetManager()
		if err != nil {
			fmt.Println("No credentials stored. Run 'xraysync login' to get started.")
			return nil
		}
		id, _, err := km.LoadCredentials()
		if err != nil || id == "" {
			fmt.Println("No credentials stored. Run 'xraysync login' to get started.")
			return nil
		}
		fmt.Printf("Stored client ID: %s\n", logging.MaskTail(id, 5))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
