package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m3rciful/quizbot/core/buildinfo"
	corecmd "github.com/m3rciful/quizbot/core/cmd"
	coreconfig "github.com/m3rciful/quizbot/core/config"
	coredatabase "github.com/m3rciful/quizbot/core/database"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/quiz/app"
	"github.com/m3rciful/quizbot/quiz/bank"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "quizbot",
		Short:         "Conversational quiz bot for Telegram and JSON webhooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default $CONFIG_PATH or "+corecmd.DefaultConfigPath+")")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newCheckCmd(&configPath),
		newVersionCmd(),
	)
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(*cobra.Command, []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath: *configPath,
				Build: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.App, error) {
					return app.Build(ctx, cfg)
				},
			})
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the postgres store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Backend != coreconfig.BackendPostgres {
				return fmt.Errorf("migrate: store backend is %q, not postgres", cfg.Store.Backend)
			}
			if err := logger.InitLogger(cfg); err != nil {
				return err
			}
			defer logger.Shutdown()
			return coredatabase.RunMigrations(cmd.Context(), cfg.Database)
		},
	}
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and question bank, then print the scoring summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := app.LoadBank(cfg.Quiz.BankPath)
			if err != nil {
				return err
			}
			printBank(cmd.OutOrStdout(), cfg, b)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}

func loadConfig(flag string) (*coreconfig.Config, error) {
	path := corecmd.ResolveConfigPath(flag, "", corecmd.DefaultConfigPath)
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func printBank(w io.Writer, cfg *coreconfig.Config, b *bank.Bank) {
	source := cfg.Quiz.BankPath
	if source == "" {
		source = "built-in"
	}
	lo, hi := b.ScoreRange()
	fmt.Fprintf(w, "bank: %s\n", source)
	fmt.Fprintf(w, "questions: %d\n", b.Len())
	fmt.Fprintf(w, "score range: %d..%d\n", lo, hi)
	for _, c := range b.Categories() {
		fmt.Fprintf(w, "  [%d..%d] %s\n", c.Min, c.Max, c.Name)
	}
	fmt.Fprintf(w, "transport: %s, store: %s\n", cfg.Transport, cfg.Store.Backend)
	fmt.Fprintf(w, "start phrases: %s\n", strings.Join(cfg.Quiz.StartPhrases, ", "))
}
