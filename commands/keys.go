package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github/itish2003/docbot/services"
)

var useBcrypt bool

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API key allow-list entries",
}

var keysHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Print the allow-list line for a key",
	Long:  "Print the line to append to the key file so that <key> is accepted in sha256 mode.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry := services.HashKey(args[0])
		if useBcrypt {
			var err error
			if entry, err = services.BcryptKey(args[0]); err != nil {
				return fmt.Errorf("bcrypt key: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), entry)
		return nil
	},
}

func init() {
	keysHashCmd.Flags().BoolVar(&useBcrypt, "bcrypt", false, "emit a bcrypt hash instead of sha256")
	keysCmd.AddCommand(keysHashCmd)
	rootCmd.AddCommand(keysCmd)
}
