package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from the content directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		manifest, err := a.rag.Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index %s built: %d documents, %d chunks (%s)\n",
			manifest.BuildID, len(manifest.Documents), manifest.ChunkCount, a.store.Name())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
