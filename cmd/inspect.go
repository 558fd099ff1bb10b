package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show which top-level fields are stored as encoded JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		cls := resolveShape(ctx, cfg, log)

		out := cmd.OutOrStdout()
		if cls.Degraded() {
			_, err = fmt.Fprintf(out, "source: fallback (%v)\n", cls.Err)
		} else {
			_, err = fmt.Fprintf(out, "source: %s\n", cls.Source)
		}
		if err != nil {
			return err
		}
		return printList(out, "complex fields", cls.Complex.Names())
	},
}

func printList(w io.Writer, title string, items []string) error {
	if _, err := fmt.Fprintf(w, "%s:\n", title); err != nil {
		return err
	}
	for _, it := range items {
		if _, err := fmt.Fprintf(w, "  %s\n", it); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
