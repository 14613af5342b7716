package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Record is one persisted side of an upstream exchange.
type Record struct {
	// ID is the unique identifier of this record.
	ID string

	// RequestID correlates the record with the inbound request.
	RequestID string

	// ProviderKey identifies the provider entry the exchange targeted.
	ProviderKey string

	// Phase is "request" or "response".
	Phase string

	// Method and Endpoint describe the upstream call. Endpoint is the
	// full URL with credentials already redacted by the kernel.
	Method   string
	Endpoint string

	// StatusCode is set for response-phase records.
	StatusCode int

	// BodyHash is the hex SHA-256 of the body; BodySize its length.
	BodyHash string
	BodySize int

	// Timestamp is when the snapshot was captured.
	Timestamp time.Time
}

// Query filters List results. Zero values match everything.
type Query struct {
	RequestID   string
	ProviderKey string
	Phase       string
	Limit       int
}

// Store persists audit records.
type Store interface {
	// Save writes one record.
	Save(ctx context.Context, rec *Record) error

	// List returns records matching the query, newest first.
	List(ctx context.Context, q Query) ([]*Record, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// DeleteBefore removes records older than the cutoff and reports
	// how many were deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}

// MemoryStore keeps records in memory. It is the default backend and the
// one tests use; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if q.RequestID != "" && rec.RequestID != q.RequestID {
			continue
		}
		if q.ProviderKey != "" && rec.ProviderKey != q.ProviderKey {
			continue
		}
		if q.Phase != "" && rec.Phase != q.Phase {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.records {
		if rec.Timestamp.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
