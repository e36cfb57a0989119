package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/rollup"
)

// errDue is returned by check when at least one level would fire.
var errDue = errors.New("rollups are due")

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report which levels would fire, without writing anything",
		Long: "check evaluates every level and prints what a run would do.\n" +
			"It exits 1 when at least one level is due and 0 otherwise.",
		Args: cobra.NoArgs,
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
			out := cmd.OutOrStdout()
			for _, r := range reports {
				fmt.Fprintln(out, describeReport(r))
			}
			if rollup.AnyDue(reports) {
				return errDue
			}
			fmt.Fprintln(out, okStyle.Render("nothing due"))
			return nil
		},
	}
}

func describeReport(r rollup.LevelReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s ", r.Level.ID)
	if r.Due() {
		ids := make([]string, len(r.Decision.Items))
		for i, it := range r.Decision.Items {
			ids[i] = it.Identifier
		}
		b.WriteString(dueStyle.Render(fmt.Sprintf("due (%s)", r.Decision.Reason)))
		fmt.Fprintf(&b, " %d item(s): %s", len(ids), summarize(ids, 4))
		return b.String()
	}
	fmt.Fprintf(&b, "%d/%d pending", len(r.Scanned), r.Level.EarlyThreshold)
	if r.HasWindow() {
		b.WriteString(mutedStyle.Render(", window closes in " + humanDuration(r.Remaining)))
	}
	return b.String()
}

// summarize joins ids, eliding the middle when there are more than n.
func summarize(ids []string, n int) string {
	if len(ids) <= n {
		return strings.Join(ids, ", ")
	}
	return strings.Join(ids[:n/2], ", ") + ", ..., " + strings.Join(ids[len(ids)-n/2:], ", ")
}
