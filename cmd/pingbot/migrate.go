package main

import (
	"github.com/spf13/cobra"

	"pingbot/internal/app"
	"pingbot/internal/storage"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|version|force N",
		Short:     "Manage the directory schema",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.manager().Parse()
			if err != nil {
				return err
			}
			return storage.Migrate(app.StorageConfig(cfg), cliLogger(), args[0], args[1:])
		},
	}
}
