package main

import (
	"fmt"
	"os"

	"leadpipe/internal/leads/importer"

	"github.com/spf13/cobra"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import leads from a CSV file as pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := importer.Import(cmd.Context(), f, store, ctx.appLogger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d leads, %d failed\n", res.Imported, res.Failed)
			for _, rowErr := range res.Errors {
				fmt.Fprintf(out, "  row %d: %s\n", rowErr.Row, rowErr.Err)
			}
			return nil
		},
	}
}
