package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/directory-crawler/internal/api"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the directory listing and stores new companies",
		Long: `Fetches listing pages in order, starting at --start-page, and
processes the companies on each page in batches of crawler.batch_size
concurrent fetches. The crawl ends at the first page without companies, at the
first listing page that still fails after all retries, or after --max-pages.
A JSON summary is written to stdout.`,
		RunE: runCrawlCommand,
	}
	cmd.Flags().Int("start-page", 1, "first listing page to fetch")
	cmd.Flags().Int("max-pages", 0, "stop after this many listing pages (0 = no limit)")
	cmd.Flags().Bool("serve", false, "run the ops HTTP server during the crawl")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appInstance.Migrate(ctx); err != nil {
		return err
	}
	dispatch, err := appInstance.NewDispatcher()
	if err != nil {
		return err
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	var g errgroup.Group
	if cfg.Server.Enabled {
		ln, err := api.Listen(fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("start ops server: %w", err)
		}
		srv := api.NewServer(dispatch, logger.Named("api"))
		g.Go(func() error {
			return srv.Serve(serverCtx, ln)
		})
	}

	summary, runErr := dispatch.Run(ctx)
	stopServer()
	if err := g.Wait(); err != nil {
		logger.Error("ops server failed", zap.Error(err))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("crawl interrupted", zap.Error(runErr))
			return nil
		}
		return fmt.Errorf("run crawler: %w", runErr)
	}
	logger.Info("Crawl command finished.", zap.String("run_id", summary.RunID))
	return nil
}
