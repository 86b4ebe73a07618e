package crawler

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultRating is stored when a detail page carries no usable rating data.
const DefaultRating = "0"

// CompanyRecord is the unit of persistence. It is built from a single detail
// page fetch and never updated once stored.
type CompanyRecord struct {
	CompanyURL  string `json:"company_url"`
	CompanyName string `json:"company_name"`
	Website     string `json:"website"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	RatingValue string `json:"rating_value"`
	RatingCount string `json:"rating_count"`
}

// Outcome describes how a single entity fetch finished.
type Outcome string

// Entity fetch outcomes. All of them count as "finished" for batching.
const (
	OutcomePersisted    Outcome = "persisted"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeMissingEmail Outcome = "missing_email"
	OutcomeAbandoned    Outcome = "abandoned"
	OutcomeFailed       Outcome = "failed"
)

// FetchRequest captures everything needed to issue one GET.
type FetchRequest struct {
	URL   string
	Query url.Values
}

// Target returns the request URL with Query merged into any existing query string.
func (r FetchRequest) Target() (string, error) {
	if len(r.Query) == 0 {
		return r.URL, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	q := u.Query()
	for key, values := range r.Query {
		q.Del(key)
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response counts as a successful fetch.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// CrawlSummary aggregates the counters of one crawl run.
type CrawlSummary struct {
	RunID        string `json:"run_id"`
	Pages        int    `json:"pages"`
	Dispatched   int    `json:"dispatched"`
	Persisted    int    `json:"persisted"`
	Duplicates   int    `json:"duplicates"`
	MissingEmail int    `json:"missing_email"`
	Abandoned    int    `json:"abandoned"`
	Failed       int    `json:"failed"`
	// Truncated is set when the crawl stopped because a listing page was
	// abandoned after retries rather than found empty.
	Truncated  bool      `json:"truncated"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Record folds one entity outcome into the summary.
func (s *CrawlSummary) Record(outcome Outcome) {
	switch outcome {
	case OutcomePersisted:
		s.Persisted++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeMissingEmail:
		s.MissingEmail++
	case OutcomeAbandoned:
		s.Abandoned++
	case OutcomeFailed:
		s.Failed++
	}
}
