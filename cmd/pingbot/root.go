package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pingbot/internal/config"
	logx "pingbot/pkg/logx"
)

// Set at build time: -ldflags "-X main.version=v1.2.3".
var version = "dev"

type rootOptions struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pingbot",
		Short:         "Telegram bot that relays Mini App pings to admins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFiles...)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(),
		"config file (JSON or YAML); empty means environment only")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"},
		"dotenv files loaded before the config (missing files are skipped)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(config.EnvPrefix + "_CONFIG")); p != "" {
		return p
	}
	return ""
}

// manager builds a config manager with the environment overlay installed.
func (o *rootOptions) manager() *config.ConfigManager {
	m := config.NewConfigManager(o.configPath)
	m.SetEnv(config.NewEnv())
	return m
}

func cliLogger() logx.Logger {
	level := os.Getenv(config.EnvPrefix + "_LOGGING_LEVEL")
	if level == "" {
		level = "info"
	}
	return logx.NewConsole(level)
}
