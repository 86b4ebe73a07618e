package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/directory-crawler/internal/cfemail"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/extract"
	"github.com/JakeFAU/directory-crawler/internal/retry"
	"github.com/JakeFAU/directory-crawler/internal/storage/memory"
)

type immediateClock struct{}

func (immediateClock) Now() time.Time { return time.Unix(0, 0) }

func (immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	status   int
	err      error
	attempts map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, attempts: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[req.URL]++
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: status, Body: []byte(f.pages[req.URL])}, nil
}

func (f *fakeFetcher) attemptsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[url]
}

// failingStore wraps a RecordStore and fails the configured operation.
type failingStore struct {
	crawler.RecordStore
	insertErr error
	existsErr error
	// hideExisting makes Exists always report false.
	hideExisting bool
}

func (s *failingStore) Insert(ctx context.Context, record crawler.CompanyRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.RecordStore.Insert(ctx, record)
}

func (s *failingStore) Exists(ctx context.Context, email string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	if s.hideExisting {
		return false, nil
	}
	return s.RecordStore.Exists(ctx, email)
}

func detailHTML(name, email string) string {
	anchor := ""
	if email != "" {
		anchor = fmt.Sprintf(`<a class="__cf_email__" data-cfemail="%s">[email protected]</a>`, cfemail.Encode(0x42, email))
	}
	return fmt.Sprintf(`<html><body>
<h2 class="company-header__title"> %s </h2>
<div class="company-header__web-page"><span data-href="https://example.de"></span></div>
%s
<script type="application/ld+json">{"itemReviewed":{"telephone":"+49 30 123"},"ratingValue":4.5,"ratingCount":12}</script>
</body></html>`, name, anchor)
}

func newTestWorker(t *testing.T, fetcher crawler.Fetcher, store crawler.RecordStore, logger *zap.Logger) *Worker {
	t.Helper()
	ex, err := extract.New(extract.Config{BaseURL: "https://gowork.de"})
	require.NoError(t, err)
	w, err := New(fetcher, ex, store, retry.NewFixedRetryPolicy(retry.DefaultConfig(), immediateClock{}), logger)
	require.NoError(t, err)
	return w
}

func TestFetchEntityPersistsRecord(t *testing.T) {
	t.Parallel()

	url := "https://gowork.de/firma,1"
	store := memory.NewCompanyStore()
	w := newTestWorker(t, newFakeFetcher(map[string]string{url: detailHTML("KFD GmbH", "info@kfd.de")}), store, nil)

	outcome, err := w.FetchEntity(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomePersisted, outcome)
	require.Equal(t, []crawler.CompanyRecord{{
		CompanyURL:  url,
		CompanyName: "KFD GmbH",
		Website:     "https://example.de",
		Email:       "info@kfd.de",
		Phone:       "+49 30 123",
		RatingValue: "4.5",
		RatingCount: "12",
	}}, store.Records())
}

func TestFetchEntityIsIdempotentPerEmail(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]string{
		"https://gowork.de/firma,1": detailHTML("First", "a@b.com"),
		"https://gowork.de/firma,2": detailHTML("Second", "a@b.com"),
	})
	store := memory.NewCompanyStore()
	w := newTestWorker(t, fetcher, store, nil)

	outcome, err := w.FetchEntity(context.Background(), "https://gowork.de/firma,1")
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomePersisted, outcome)

	outcome, err = w.FetchEntity(context.Background(), "https://gowork.de/firma,2")
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeDuplicate, outcome)
	require.Equal(t, 1, store.Len())
	require.Equal(t, "First", store.Records()[0].CompanyName)
}

func TestFetchEntityConcurrentSameEmail(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]string{
		"https://gowork.de/firma,1": detailHTML("One", "a@b.com"),
		"https://gowork.de/firma,2": detailHTML("Two", "a@b.com"),
	})
	store := memory.NewCompanyStore()
	w := newTestWorker(t, fetcher, store, nil)

	outcomes := make([]crawler.Outcome, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, url := range []string{"https://gowork.de/firma,1", "https://gowork.de/firma,2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = w.FetchEntity(context.Background(), url)
		}()
	}
	wg.Wait()

	require.NoError(t, errors.Join(errs...))
	require.Equal(t, 1, store.Len())
	require.ElementsMatch(t, []crawler.Outcome{crawler.OutcomePersisted, crawler.OutcomeDuplicate}, outcomes)
}

func TestFetchEntityInsertRaceIsSwallowed(t *testing.T) {
	t.Parallel()

	url := "https://gowork.de/firma,9"
	store := &failingStore{RecordStore: memory.NewCompanyStore(), hideExisting: true}
	require.NoError(t, store.RecordStore.Insert(context.Background(), crawler.CompanyRecord{Email: "a@b.com"}))
	w := newTestWorker(t, newFakeFetcher(map[string]string{url: detailHTML("Late", "a@b.com")}), store, nil)

	outcome, err := w.FetchEntity(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeDuplicate, outcome)
}

func TestFetchEntityMissingEmail(t *testing.T) {
	t.Parallel()

	url := "https://gowork.de/firma,3"
	store := memory.NewCompanyStore()
	w := newTestWorker(t, newFakeFetcher(map[string]string{url: detailHTML("No Mail", "")}), store, nil)

	outcome, err := w.FetchEntity(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeMissingEmail, outcome)
	require.Zero(t, store.Len())
}

func TestFetchEntityAbandonsAfterRetries(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		fetcher *fakeFetcher
	}{
		{"server error", &fakeFetcher{status: http.StatusInternalServerError, attempts: map[string]int{}}},
		{"transport error", &fakeFetcher{err: errors.New("i/o timeout"), attempts: map[string]int{}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			url := "https://gowork.de/firma,4"
			core, logs := observer.New(zapcore.InfoLevel)
			store := memory.NewCompanyStore()
			w := newTestWorker(t, tc.fetcher, store, zap.New(core))

			outcome, err := w.FetchEntity(context.Background(), url)
			require.ErrorIs(t, err, crawler.ErrFetchAbandoned)
			require.Equal(t, crawler.OutcomeAbandoned, outcome)
			require.Equal(t, 4, tc.fetcher.attemptsFor(url))
			require.Zero(t, store.Len())

			entries := logs.FilterMessage("entity abandoned").All()
			require.Len(t, entries, 1)
			require.Equal(t, url, entries[0].ContextMap()["url"])
		})
	}
}

func TestFetchEntityStoreFailures(t *testing.T) {
	t.Parallel()

	url := "https://gowork.de/firma,5"
	boom := errors.New("connection lost")
	testCases := []struct {
		name  string
		store *failingStore
	}{
		{"exists fails", &failingStore{RecordStore: memory.NewCompanyStore(), existsErr: boom}},
		{"insert fails", &failingStore{RecordStore: memory.NewCompanyStore(), insertErr: boom}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := newTestWorker(t, newFakeFetcher(map[string]string{url: detailHTML("X", "x@y.de")}), tc.store, nil)
			outcome, err := w.FetchEntity(context.Background(), url)
			require.ErrorIs(t, err, boom)
			require.Equal(t, crawler.OutcomeFailed, outcome)
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, nil, nil)
	require.Error(t, err)
}
