package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyamedia/nyabot/bots/nyamedia/app"
	"github.com/nyamedia/nyabot/core/buildinfo"
	corecmd "github.com/nyamedia/nyabot/core/cmd"
)

const defaultConfigPath = "config.yaml"

var configFlag string

func main() {
	root := &cobra.Command{
		Use:           "nyabot",
		Short:         "Telegram front end for Emby accounts and media requests",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default $CONFIG_PATH or "+defaultConfigPath+")")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the bot and the HTTP API",
		RunE:  runBot,
	})

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd, app.MigrateUp)
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd, app.MigrateVersion)
		},
	})
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runOptions() corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configFlag,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig:        app.Load,
		Bootstrap:         app.Bootstrap,
	}
}

func runBot(*cobra.Command, []string) error {
	return corecmd.Run(runOptions())
}

func migrate(cmd *cobra.Command, fn func(context.Context, string) (app.MigrationStatus, error)) error {
	path, err := runOptions().ResolveConfigPath()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := fn(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", st.Version, st.Dirty)
	return nil
}
