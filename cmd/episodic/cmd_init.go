package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/episodic/pkg/config"
	"github.com/entrhq/episodic/pkg/fsutil"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter " + config.FileName + " and create the corpus directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath
			if path == "" {
				path = filepath.Join(a.cfg.Root, config.FileName)
			}
			exists, err := fsutil.Exists(path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", path)
			}

			starter := config.DefaultConfig()
			data, err := starter.Marshal()
			if err != nil {
				return err
			}
			if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
				return err
			}

			registry, err := a.cfg.Registry()
			if err != nil {
				return err
			}
			layout := a.cfg.Layout()
			dirs := []string{layout.RawDir(registry.Raw())}
			for _, l := range registry.Chain() {
				dirs = append(dirs, layout.LevelDir(l))
			}
			var errs []error
			for _, d := range dirs {
				if err := os.MkdirAll(d, 0o755); err != nil {
					errs = append(errs, err)
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing config file")
	return cmd
}
