package main

import (
	"fmt"
	"sort"
	"strconv"

	"leadpipe/internal/leads/domain"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatistics(stats))
			return nil
		},
	}
}

func renderStatistics(stats domain.Statistics) string {
	rows := make([][]string, 0, len(stats.StatusCounts)+4)
	for _, s := range domain.AllStatuses() {
		rows = append(rows, []string{s.Label(), strconv.Itoa(stats.StatusCounts[string(s)])})
	}
	var unknown []string
	for name := range stats.StatusCounts {
		if !domain.Status(name).Valid() {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		rows = append(rows, []string{name, strconv.Itoa(stats.StatusCounts[name])})
	}

	summary := [][]string{
		{"Total leads", strconv.Itoa(stats.TotalLeads)},
		{"Calls today", strconv.Itoa(stats.CallsToday)},
		{"Entries today", strconv.Itoa(stats.EntriesToday)},
		{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate)},
	}

	aligns := []columnAlignment{alignLeft, alignRight}
	return renderTable([]string{"Status", "Leads"}, rows, aligns) + "\n" +
		renderTable([]string{"Metric", "Value"}, summary, aligns) + "\n"
}
