package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showSources bool

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Ask a question against the current index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), getConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		question := strings.Join(args, " ")
		answer, err := a.rag.Query(cmd.Context(), question)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		heading := color.New(color.FgCyan, color.Bold)
		heading.Fprintln(out, "Answer:")
		fmt.Fprintln(out, answer)

		if showSources {
			docs, err := a.rag.Retrieve(cmd.Context(), question)
			if err != nil {
				return err
			}
			heading.Fprintln(out, "\nSources:")
			src := color.New(color.FgYellow)
			for _, d := range docs {
				name, _ := d.Metadata["source_file"].(string)
				src.Fprintf(out, "  %.3f  %s\n", d.Score, filepath.Base(name))
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved chunks' files and scores")
	rootCmd.AddCommand(queryCmd)
}
