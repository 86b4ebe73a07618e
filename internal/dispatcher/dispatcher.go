// Package dispatcher drives pagination and fans entity fetches out in bounded
// batches.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
)

// DefaultBatchSize bounds the number of concurrent entity fetches.
const DefaultBatchSize = 100

// ErrAlreadyRunning is returned when Run is called while a crawl is active.
var ErrAlreadyRunning = errors.New("crawl already running")

// Config controls pagination and batching.
type Config struct {
	StartPage int
	// MaxPages stops the crawl after this many listing pages; 0 means no limit.
	MaxPages  int
	BatchSize int
}

// Dispatcher walks listing pages one at a time and processes the entities on
// each page in consecutive batches separated by a full barrier.
type Dispatcher struct {
	pages    crawler.PageSource
	entities crawler.EntityProcessor
	ids      crawler.IDGenerator
	cfg      Config
	logger   *zap.Logger
	clock    crawler.Clock

	mu      sync.Mutex
	running bool
	summary crawler.CrawlSummary
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock stamps run start and finish times on the summary.
func WithClock(clock crawler.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// New creates a Dispatcher. ids may be nil, in which case runs have no ID.
func New(
	pages crawler.PageSource,
	entities crawler.EntityProcessor,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) (*Dispatcher, error) {
	if pages == nil || entities == nil {
		return nil, errors.New("dispatcher requires a page source and an entity processor")
	}
	if cfg.StartPage < 1 {
		cfg.StartPage = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("max pages must not be negative, got %d", cfg.MaxPages)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		pages:    pages,
		entities: entities,
		ids:      ids,
		cfg:      cfg,
		logger:   logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run crawls until a listing page yields no entities, a page is abandoned, or
// MaxPages is reached. Single page or entity failures never abort the crawl.
// The only error returned is context cancellation.
func (d *Dispatcher) Run(ctx context.Context) (crawler.CrawlSummary, error) {
	runID, err := d.start()
	if err != nil {
		return crawler.CrawlSummary{}, err
	}

	logger := d.logger.With(zap.String("run_id", runID))
	logger.Info("crawl started",
		zap.Int("start_page", d.cfg.StartPage),
		zap.Int("max_pages", d.cfg.MaxPages),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	for page := d.cfg.StartPage; ; page++ {
		if d.cfg.MaxPages > 0 && page-d.cfg.StartPage >= d.cfg.MaxPages {
			logger.Info("page limit reached", zap.Int("page", page))
			break
		}
		if err := ctx.Err(); err != nil {
			return d.finish(), fmt.Errorf("crawl interrupted before page %d: %w", page, err)
		}

		urls, err := d.pages.FetchPage(ctx, page)
		d.update(func(s *crawler.CrawlSummary) { s.Pages++ })
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return d.finish(), fmt.Errorf("crawl interrupted on page %d: %w", page, ctxErr)
			}
			// A failed page ends the crawl like an empty one but is reported.
			d.update(func(s *crawler.CrawlSummary) { s.Truncated = true })
			logger.Error("crawl truncated by failed listing page", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(urls) == 0 {
			logger.Info("listing exhausted", zap.Int("page", page))
			break
		}

		logger.Info("dispatching page", zap.Int("page", page), zap.Int("urls", len(urls)))
		d.dispatchPage(ctx, logger, page, urls)
	}

	summary := d.finish()
	logger.Info("crawl finished",
		zap.Int("pages", summary.Pages),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("persisted", summary.Persisted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("missing_email", summary.MissingEmail),
		zap.Int("abandoned", summary.Abandoned),
		zap.Int("failed", summary.Failed),
		zap.Bool("truncated", summary.Truncated),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// dispatchPage runs urls in consecutive batches of at most BatchSize. Each
// batch completes fully before the next one starts.
func (d *Dispatcher) dispatchPage(ctx context.Context, logger *zap.Logger, page int, urls []string) {
	for start := 0; start < len(urls); start += d.cfg.BatchSize {
		batch := urls[start:min(start+d.cfg.BatchSize, len(urls))]

		var g errgroup.Group
		g.SetLimit(d.cfg.BatchSize)
		for _, url := range batch {
			d.update(func(s *crawler.CrawlSummary) { s.Dispatched++ })
			g.Go(func() error {
				outcome, err := d.entities.FetchEntity(ctx, url)
				d.update(func(s *crawler.CrawlSummary) { s.Record(outcome) })
				if err != nil {
					logger.Debug("entity finished with error",
						zap.String("url", url),
						zap.String("outcome", string(outcome)),
						zap.Error(err),
					)
				}
				// Entity errors stay local to the entity.
				return nil
			})
		}
		_ = g.Wait()
		metrics.ObserveBatch()
		logger.Debug("batch finished", zap.Int("page", page), zap.Int("offset", start), zap.Int("size", len(batch)))
	}
}

// Snapshot returns the counters of the current or most recent run.
func (d *Dispatcher) Snapshot() crawler.CrawlSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary
}

// Running reports whether a crawl is in progress.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) start() (string, error) {
	var runID string
	if d.ids != nil {
		id, err := d.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("new run id: %w", err)
		}
		runID = id
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return "", ErrAlreadyRunning
	}
	d.running = true
	d.summary = crawler.CrawlSummary{RunID: runID, StartedAt: d.now()}
	return runID, nil
}

// finish marks the run as stopped and returns its final summary.
func (d *Dispatcher) finish() crawler.CrawlSummary {
	finishedAt := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.summary.FinishedAt = finishedAt
	return d.summary
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Time{}
	}
	return d.clock.Now()
}

func (d *Dispatcher) update(fn func(*crawler.CrawlSummary)) {
	d.mu.Lock()
	fn(&d.summary)
	d.mu.Unlock()
}
