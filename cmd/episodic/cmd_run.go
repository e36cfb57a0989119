package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/rollup"
)

func newRunCmd(a *app) *cobra.Command {
	var flags struct {
		engineFlags
		level string
		draft bool
	}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fire every due level and cascade the results upward",
		Long: "run evaluates the levels from weekly upward. A due level is analyzed,\n" +
			"committed and promoted, which may make the next level due in the same run.\n" +
			"With --draft the filled digests go to each level's drafts directory and\n" +
			"nothing is committed; name them later with finalize.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := a.policy(&flags.engineFlags)
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context(), true, &flags.engineFlags)
			if err != nil {
				return err
			}
			defer s.Close()

			outcomes, err := s.engine.Run(cmd.Context(), rollup.Options{
				Policy: policy,
				Draft:  flags.draft,
				Level:  flags.level,
			})
			printOutcomes(cmd.OutOrStdout(), outcomes)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("nothing due"))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.level, "level", "", "only evaluate this level id")
	cmd.Flags().BoolVar(&flags.draft, "draft", false, "write drafts instead of committing")
	return cmd
}

func printOutcomes(w io.Writer, outcomes []rollup.Outcome) {
	for _, o := range outcomes {
		fmt.Fprintln(w, describeOutcome(o))
	}
}

func describeOutcome(o rollup.Outcome) string {
	var b strings.Builder
	switch {
	case o.Skipped:
		b.WriteString(mutedStyle.Render("skipped"))
	case o.Draft:
		b.WriteString(dueStyle.Render("drafted"))
	case o.Overwritten:
		b.WriteString(headerStyle.Render("rewrote"))
	default:
		b.WriteString(okStyle.Render("wrote"))
	}
	fmt.Fprintf(&b, " %s %s (%s, %d input(s): %s)", o.Level, o.Identifier, o.Reason, len(o.Inputs), summarize(o.Inputs, 4))
	if o.Draft {
		fmt.Fprintf(&b, " -> %s", o.Path)
	}
	if p := o.Promotion; p != nil && p.NextLevel != "" {
		fmt.Fprintf(&b, "; %s shadow +%d", p.NextLevel, p.Seeded)
		if p.SeedErr != nil {
			fmt.Fprintf(&b, " (seed failed: %v)", p.SeedErr)
		}
	}
	return b.String()
}
