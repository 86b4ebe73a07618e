// Package worker fetches company detail pages, deduplicates them by e-mail and
// persists new records.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/extract"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
	"github.com/JakeFAU/directory-crawler/internal/retry"
)

// Worker implements crawler.EntityProcessor.
type Worker struct {
	fetcher   crawler.Fetcher
	extractor *extract.Extractor
	store     crawler.RecordStore
	policy    *retry.FixedRetryPolicy
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	fetcher crawler.Fetcher,
	extractor *extract.Extractor,
	store crawler.RecordStore,
	policy *retry.FixedRetryPolicy,
	logger *zap.Logger,
) (*Worker, error) {
	if fetcher == nil || extractor == nil || store == nil || policy == nil {
		return nil, errors.New("worker requires a fetcher, extractor, store and retry policy")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		policy:    policy,
		logger:    logger.Named("worker"),
	}, nil
}

// FetchEntity fetches one detail page and persists at most one record.
// Duplicates and pages without an e-mail are normal outcomes and return a nil
// error. Abandoned fetches and store failures return the cause alongside the
// outcome.
func (w *Worker) FetchEntity(ctx context.Context, url string) (crawler.Outcome, error) {
	metrics.IncInflight()
	defer metrics.DecInflight()

	outcome, err := w.fetchEntity(ctx, url)
	metrics.ObserveEntity(string(outcome))
	return outcome, err
}

func (w *Worker) fetchEntity(ctx context.Context, url string) (crawler.Outcome, error) {
	resp, err := w.policy.Fetch(ctx, w.fetcher, crawler.FetchRequest{URL: url},
		func(attempt int, r crawler.FetchResponse, err error) {
			metrics.ObserveFetch(metrics.KindDetail, url, r.StatusCode, len(r.Body), r.Duration)
			if err != nil || !r.OK() {
				w.logger.Debug("detail fetch attempt failed",
					zap.String("url", url),
					zap.Int("attempt", attempt+1),
					zap.Int("status", r.StatusCode),
					zap.Error(err),
				)
			}
		})
	if err != nil {
		if errors.Is(err, crawler.ErrFetchAbandoned) {
			w.logger.Error("entity abandoned", zap.String("url", url), zap.Error(err))
			return crawler.OutcomeAbandoned, fmt.Errorf("fetch %s: %w", url, err)
		}
		return crawler.OutcomeFailed, fmt.Errorf("fetch %s: %w", url, err)
	}

	doc, err := extract.ParseDocument(resp.Body)
	if err != nil {
		w.logger.Error("parse detail page failed", zap.String("url", url), zap.Error(err))
		return crawler.OutcomeFailed, fmt.Errorf("%s: %w", url, err)
	}

	email := extract.Email(doc)
	if email == "" {
		w.logger.Debug("no email on detail page", zap.String("url", url))
		return crawler.OutcomeMissingEmail, nil
	}
	exists, err := w.store.Exists(ctx, email)
	if err != nil {
		w.logger.Error("dedup lookup failed", zap.String("url", url), zap.Error(err))
		return crawler.OutcomeFailed, fmt.Errorf("exists %s: %w", email, err)
	}
	if exists {
		w.logger.Debug("email already stored", zap.String("url", url), zap.String("email", email))
		return crawler.OutcomeDuplicate, nil
	}

	record := w.extractor.Detail(doc)
	record.CompanyURL = url
	record.Email = email
	if err := w.store.Insert(ctx, record); err != nil {
		if errors.Is(err, crawler.ErrDuplicateKey) {
			// Lost the insert race to a concurrent fetch of the same company.
			w.logger.Debug("duplicate insert skipped", zap.String("url", url), zap.String("email", email))
			return crawler.OutcomeDuplicate, nil
		}
		w.logger.Error("persist record failed", zap.String("url", url), zap.Error(err))
		return crawler.OutcomeFailed, fmt.Errorf("insert %s: %w", email, err)
	}
	w.logger.Info("record persisted",
		zap.String("url", url),
		zap.String("company", record.CompanyName),
		zap.String("email", email),
	)
	return crawler.OutcomePersisted, nil
}
