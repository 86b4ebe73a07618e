// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// CompanyStore keeps company records in a map keyed by e-mail.
type CompanyStore struct {
	mu      sync.RWMutex
	records map[string]crawler.CompanyRecord
}

// NewCompanyStore constructs an empty CompanyStore.
func NewCompanyStore() *CompanyStore {
	return &CompanyStore{records: make(map[string]crawler.CompanyRecord)}
}

// Insert stores record or returns crawler.ErrDuplicateKey when its e-mail is
// already present.
func (s *CompanyStore) Insert(_ context.Context, record crawler.CompanyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Email]; exists {
		return fmt.Errorf("email %q: %w", record.Email, crawler.ErrDuplicateKey)
	}
	s.records[record.Email] = record
	return nil
}

// Exists reports whether a record with the e-mail is stored.
func (s *CompanyStore) Exists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[email]
	return ok, nil
}

// Len returns the number of stored records.
func (s *CompanyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of the stored records ordered by e-mail.
func (s *CompanyStore) Records() []crawler.CompanyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.CompanyRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Close is a no-op.
func (s *CompanyStore) Close() error {
	return nil
}
