package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/rollup"
)

func newRollupCmd(a *app) *cobra.Command {
	var flags struct {
		engineFlags
		title string
		draft bool
	}
	cmd := &cobra.Command{
		Use:   "rollup <level>",
		Short: "Roll up a level's shadow buffer now, regardless of its triggers",
		Long: "rollup digests everything in the level's shadow buffer. When the shadow\n" +
			"holds analyst content from an earlier draft run that content is used,\n" +
			"otherwise the analyst is called.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.policy(&flags.engineFlags)
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context(), true, &flags.engineFlags)
			if err != nil {
				return err
			}
			defer s.Close()

			o, err := s.engine.RollupManual(cmd.Context(), args[0], flags.title, rollup.Options{
				Policy: policy,
				Draft:  flags.draft,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeOutcome(o))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.title, "title", "", "digest title (default from the analyst)")
	cmd.Flags().BoolVar(&flags.draft, "draft", false, "write a draft instead of committing")
	return cmd
}
