// Package listing fetches paginated search pages and returns the company
// detail URLs they list.
package listing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/extract"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
	"github.com/JakeFAU/directory-crawler/internal/retry"
)

const pageParam = "page"

// Config controls listing requests.
type Config struct {
	SearchURL string
}

// Fetcher implements crawler.PageSource.
type Fetcher struct {
	fetcher   crawler.Fetcher
	extractor *extract.Extractor
	policy    *retry.FixedRetryPolicy
	cfg       Config
	logger    *zap.Logger
}

// New constructs a listing Fetcher.
func New(
	fetcher crawler.Fetcher,
	extractor *extract.Extractor,
	policy *retry.FixedRetryPolicy,
	cfg Config,
	logger *zap.Logger,
) (*Fetcher, error) {
	if fetcher == nil || extractor == nil || policy == nil {
		return nil, errors.New("listing fetcher requires a fetcher, extractor and retry policy")
	}
	if _, err := url.ParseRequestURI(cfg.SearchURL); err != nil {
		return nil, fmt.Errorf("invalid search url %q: %w", cfg.SearchURL, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		fetcher:   fetcher,
		extractor: extractor,
		policy:    policy,
		cfg:       cfg,
		logger:    logger.Named("listing"),
	}, nil
}

// FetchPage returns the detail URLs on the given page. An empty slice with a
// nil error means the listing is exhausted. When every attempt fails the
// result is also empty and the error wraps crawler.ErrFetchAbandoned.
func (f *Fetcher) FetchPage(ctx context.Context, page int) ([]string, error) {
	request := crawler.FetchRequest{
		URL:   f.cfg.SearchURL,
		Query: url.Values{pageParam: []string{strconv.Itoa(page)}},
	}
	resp, err := f.policy.Fetch(ctx, f.fetcher, request, func(attempt int, r crawler.FetchResponse, err error) {
		metrics.ObserveFetch(metrics.KindListing, f.cfg.SearchURL, r.StatusCode, len(r.Body), r.Duration)
		if err != nil || !r.OK() {
			f.logger.Warn("listing fetch attempt failed",
				zap.Int("page", page),
				zap.Int("attempt", attempt+1),
				zap.Int("status", r.StatusCode),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		if errors.Is(err, crawler.ErrFetchAbandoned) {
			metrics.ObserveListingPage(metrics.PageResultAbandoned)
			f.logger.Error("listing page abandoned", zap.Int("page", page), zap.Error(err))
		}
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	doc, err := extract.ParseDocument(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	urls := f.extractor.CompanyURLs(doc)
	if len(urls) == 0 {
		metrics.ObserveListingPage(metrics.PageResultEmpty)
	} else {
		metrics.ObserveListingPage(metrics.PageResultEntities)
	}
	f.logger.Debug("listing page fetched", zap.Int("page", page), zap.Int("urls", len(urls)))
	return urls, nil
}
