package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pingbot/internal/app"
	"pingbot/internal/storage"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "seed [chat-id...]",
		Short: "Promote chat ids to admin (defaults to bot.admin_chat_ids)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSeed(ctx, cmd, opts, args)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, opts *rootOptions, args []string) error {
	cfg, err := opts.manager().Parse()
	if err != nil {
		return err
	}
	ids := args
	if len(ids) == 0 {
		ids = cfg.Bot.AdminChatIDs
	}
	if len(ids) == 0 {
		return errors.New("no chat ids given and bot.admin_chat_ids is empty")
	}

	log := cliLogger()
	dir, err := storage.Open(ctx, app.StorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer dir.Close()

	rep := users.Seed(ctx, dir, ids)
	out := cmd.OutOrStdout()
	for _, o := range rep.Outcomes {
		if o.Err != nil {
			_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", o.ChatID, o.Err)
			continue
		}
		_, _ = fmt.Fprintf(out, "ok   %s\n", o.ChatID)
	}
	if n := rep.Failed(); n > 0 {
		return fmt.Errorf("%d of %d ids failed", n, len(rep.Outcomes))
	}
	return nil
}
