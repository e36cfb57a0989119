package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/digest"
	"github.com/entrhq/episodic/pkg/finalize"
)

func newFinalizeCmd(a *app) *cobra.Command {
	var overwrite string
	cmd := &cobra.Command{
		Use:   "finalize <draft> <title>",
		Short: "Commit a draft under a title and promote it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.policy(&engineFlags{overwrite: overwrite})
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context(), true, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			f := finalize.New(s.engine.Registry(), s.engine.Builder(), s.engine, a.log.Named("finalize"), nil)
			res, err := f.Finalize(cmd.Context(), args[0], args[1], policy)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Receipt.Skipped {
				fmt.Fprintf(out, "%s %s exists, draft kept\n", mutedStyle.Render("skipped"), res.Receipt.Identifier)
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("finalized"), res.Receipt.Path)
			if p := res.Promotion; p != nil && p.NextLevel != "" {
				fmt.Fprintf(out, "%s shadow +%d\n", p.NextLevel, p.Seeded)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&overwrite, "overwrite", "", "when the digest exists: "+policyChoices()+" (default from config)")
	return cmd
}

func policyChoices() string {
	return digest.PolicyAbort.String() + ", " + digest.PolicyOverwrite.String() + " or " + digest.PolicySkip.String()
}
