// Package cmd defines and implements the CLI commands for the directorycrawler
// executable.
//
// Commands:
//   - crawl walks the directory listing and persists new companies.
//   - migrate creates the company table for SQL stores.
//
// Configuration comes from an optional YAML file (--config) and CRAWLER_*
// environment variables, for example CRAWLER_STORAGE_PROVIDER=postgres and
// CRAWLER_STORAGE_POSTGRES_DSN=postgres://... .
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/app"
	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can inject
// options such as a fake transport.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "directorycrawler",
		Short: "Crawls a business directory and stores company contact records.",
		Long: `directorycrawler walks the paginated search listing of a business
directory, fetches every company detail page in bounded batches, decodes the
obfuscated e-mail address and stores one record per unique e-mail.`,
		SilenceUsage: true,

		// Builds the App after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			closeErr := appInstance.Close()
			// Sync fails on non-file sinks such as a terminal; that is not worth reporting.
			_ = appInstance.Logger().Sync()
			return closeErr
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// applyFlagOverrides copies explicitly set subcommand flags into cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("start-page") {
		v, err := flags.GetInt("start-page")
		if err != nil {
			return fmt.Errorf("read --start-page: %w", err)
		}
		cfg.Crawler.StartPage = v
	}
	if flags.Changed("max-pages") {
		v, err := flags.GetInt("max-pages")
		if err != nil {
			return fmt.Errorf("read --max-pages: %w", err)
		}
		cfg.Crawler.MaxPages = v
	}
	if flags.Changed("serve") {
		v, err := flags.GetBool("serve")
		if err != nil {
			return fmt.Errorf("read --serve: %w", err)
		}
		cfg.Server.Enabled = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "directorycrawler: %v\n", err)
		os.Exit(1)
	}
}
