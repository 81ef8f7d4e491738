package main

import (
	"fmt"
	"io"
	"os"

	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/importer"
	"leadpipe/internal/leads/ports"

	"github.com/spf13/cobra"
)

const exportPageSize = 500

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		output string
		status string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export leads with their pipeline results as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := ports.ListFilter{Limit: exportPageSize}
			if status != "" {
				s, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &s
			}

			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			var all []domain.Lead
			for {
				page, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				all = append(all, page...)
				if len(page) < exportPageSize {
					break
				}
				filter.Offset += len(page)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			if err := importer.Export(w, all); err != nil {
				return err
			}
			ctx.appLogger().Info("leads exported", "count", len(all), "output", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&status, "status", "", "Only export leads in this status")
	return cmd
}
