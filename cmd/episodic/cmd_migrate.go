package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/level"
	"github.com/entrhq/episodic/pkg/lock"
	"github.com/entrhq/episodic/pkg/migrate"
)

// migrateTarget is one directory of sequence-numbered files.
type migrateTarget struct {
	dir, prefix, ext string
	width            int
}

func newMigrateCmd(a *app) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rename records and digests to the configured sequence width",
		Long: "migrate lists files whose sequence number is narrower than the configured\n" +
			"width, e.g. Loop001_x.txt instead of Loop0001_x.txt. With --apply the files\n" +
			"are renamed; an existing target is never replaced.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := a.cfg.Registry()
			if err != nil {
				return err
			}
			if apply {
				l, err := lock.Acquire(filepath.Join(a.cfg.Root, lock.FileName))
				if err != nil {
					return err
				}
				defer func() { _ = l.Release() }()
			}

			layout := a.cfg.Layout()
			raw := registry.Raw()
			dirs := []migrateTarget{{layout.RawDir(raw), raw.Prefix, raw.Extension, raw.Width}}
			for _, l := range registry.Chain() {
				dirs = append(dirs, migrateTarget{layout.LevelDir(l), l.Prefix, level.DigestExtension, l.Width})
			}

			out := cmd.OutOrStdout()
			total := 0
			for _, d := range dirs {
				plan, err := migrate.PlanDir(d.dir, d.prefix, d.width, d.ext)
				if err != nil {
					return err
				}
				if apply {
					plan, err = migrate.Apply(plan)
					if err != nil {
						return err
					}
				}
				for _, r := range plan.Renames {
					if r.Skipped {
						fmt.Fprintf(out, "%s %s (%s)\n", mutedStyle.Render("skip"), r.From, r.Reason)
						continue
					}
					fmt.Fprintf(out, "%s -> %s\n", r.From, r.To)
				}
				total += plan.Pending()
			}
			switch {
			case total == 0:
				fmt.Fprintln(out, okStyle.Render("nothing to rename"))
			case apply:
				fmt.Fprintf(out, "%s %d file(s)\n", okStyle.Render("renamed"), total)
			default:
				fmt.Fprintf(out, "%d file(s) to rename, run with --apply\n", total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "perform the renames")
	return cmd
}
