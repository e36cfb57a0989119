package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/rollup"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show watermarks, shadow buffers and windows per level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open(cmd.Context(), false, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			reports, err := s.engine.Check(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusTable(reports))
			return nil
		},
	}
}

func statusTable(reports []rollup.LevelReport) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, statusRow(r))
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 6 && row >= 0 && row < len(reports) && reports[row].Due():
				return dueStyle.Padding(0, 1)
			default:
				return cellStyle
			}
		}).
		Headers("Level", "Watermark", "Issued", "Consumed", "Shadow", "Pending", "Next due").
		Rows(rows...).
		String()
}

func statusRow(r rollup.LevelReport) []string {
	wm := r.Watermark
	rollover := "never"
	if wm.IsSet() {
		rollover = wm.RolloverAt.Local().Format(time.DateTime)
	}
	next := "-"
	switch {
	case r.Due():
		next = "due (" + string(r.Decision.Reason) + ")"
	case r.HasWindow():
		next = "in " + humanDuration(r.Remaining)
	}
	return []string{
		r.Level.ID,
		rollover,
		strconv.Itoa(wm.Issued),
		strconv.Itoa(wm.ConsumedThrough),
		strconv.Itoa(r.Shadow),
		fmt.Sprintf("%d/%d", len(r.Scanned), r.Level.EarlyThreshold),
		next,
	}
}
