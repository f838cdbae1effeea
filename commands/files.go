package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github/itish2003/docbot/services"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the uploaded and webhook files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		content := services.NewContentStore(cfg.Paths.Data, cfg.Paths.Webhooks, cfg.Paths.Storage)
		out := cmd.OutOrStdout()
		heading := color.New(color.Bold)

		for _, ns := range content.Namespaces() {
			dir, _ := content.Dir(ns)
			names, err := content.List(ns)
			if err != nil {
				return err
			}
			heading.Fprintf(out, "%s (%s): %d\n", ns, dir, len(names))
			for _, name := range names {
				fmt.Fprintf(out, "  %s\n", name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
}
