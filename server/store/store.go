// Package store persists verification results keyed by mail id.
package store

import (
	"sync"

	smimecheck "github.com/mseverin/go-smimecheck"
)

// ResultStore defines the interface for storing and retrieving verification
// results. Implementations must be safe for concurrent use; the SMTP and
// HTTP frontends write and read from independent goroutines.
type ResultStore interface {
	// Save records the result for its mail id, replacing any earlier
	// result for the same id.
	Save(result *smimecheck.VerificationResult) error

	// Get retrieves the result for a mail id, nil when none is recorded.
	Get(mailID string) (*smimecheck.VerificationResult, error)

	// List retrieves all recorded results in insertion order.
	List() ([]*smimecheck.VerificationResult, error)

	// Delete removes the result for a mail id. Deleting an unknown id is
	// not an error.
	Delete(mailID string) error

	// Close releases any resources used by the store.
	Close() error
}

// InMemoryStore implements ResultStore using in-memory storage.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string]*smimecheck.VerificationResult
	order   []string
}

// NewInMemoryStore creates a new in-memory result store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		results: make(map[string]*smimecheck.VerificationResult),
	}
}

// Save implements ResultStore.Save.
func (s *InMemoryStore) Save(result *smimecheck.VerificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[result.MailID]; !ok {
		s.order = append(s.order, result.MailID)
	}
	// Store a copy so callers cannot mutate a recorded verdict.
	clone := *result
	s.results[result.MailID] = &clone
	return nil
}

// Get implements ResultStore.Get.
func (s *InMemoryStore) Get(mailID string) (*smimecheck.VerificationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if result, ok := s.results[mailID]; ok {
		clone := *result
		return &clone, nil
	}
	return nil, nil
}

// List implements ResultStore.List.
func (s *InMemoryStore) List() ([]*smimecheck.VerificationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*smimecheck.VerificationResult, 0, len(s.order))
	for _, id := range s.order {
		if result, ok := s.results[id]; ok {
			clone := *result
			results = append(results, &clone)
		}
	}
	return results, nil
}

// Delete implements ResultStore.Delete.
func (s *InMemoryStore) Delete(mailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[mailID]; !ok {
		return nil
	}
	delete(s.results, mailID)
	for i, id := range s.order {
		if id == mailID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements ResultStore.Close.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make(map[string]*smimecheck.VerificationResult)
	s.order = nil
	return nil
}
