package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/state"
)

func newShadowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Inspect or refresh the per-level shadow buffers",
	}
	cmd.AddCommand(newShadowUpdateCmd(a), newShadowShowCmd(a))
	return cmd
}

func newShadowUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Add every pending input to its level's shadow buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open(cmd.Context(), true, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			added, err := s.engine.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, l := range s.engine.Registry().Chain() {
				if n := added[l.ID]; n > 0 {
					fmt.Fprintf(out, "%-14s +%d\n", l.ID, n)
				}
			}
			return nil
		},
	}
}

func newShadowShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [level]",
		Short: "Print shadow buffers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), false, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			ids := s.engine.Registry().IDs()
			if len(args) == 1 {
				ids = args[:1]
			}
			buffers := make(map[string]state.ShadowBuffer, len(ids))
			for _, id := range ids {
				b, err := s.engine.Shadow(cmd.Context(), id)
				if err != nil {
					return err
				}
				buffers[id] = b
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(buffers)
			}
			for _, id := range ids {
				b := buffers[id]
				fmt.Fprintf(out, "%s %s\n", headerStyle.Render(id), mutedStyle.Render(fmt.Sprintf("(%d pending)", b.Len())))
				for _, pid := range b.Identifiers {
					fmt.Fprintf(out, "  %s\n", pid)
				}
				if b.Draft.Filled {
					fmt.Fprintf(out, "  draft: %s\n", b.Draft.Abstract)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
