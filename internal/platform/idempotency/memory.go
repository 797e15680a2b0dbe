package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	pconfig "github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
)

// NewStore returns the backend named by kind. The memory backend does not share records
// between instances, so it only suits local runs and single-replica deployments.
func NewStore(kind string, provider *pfirestore.Provider) (Store, error) {
	switch kind {
	case "", pconfig.IdempotencyStoreFirestore:
		store, err := NewFirestoreStore(provider, "")
		if err != nil {
			return nil, err
		}
		return store, nil
	case pconfig.IdempotencyStoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("idempotency: unknown store %q", kind)
	}
}

// MemoryStore is an in-process Store for tests and local runs without Firestore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	existing, found := s.records[id]
	switch {
	case !found || existing.expired(now):
		fresh := newPendingRecord(key, fingerprint, now, ttl)
		s.records[id] = fresh
		return Reservation{State: ReservationStateNew, Record: fresh}, nil
	case existing.Fingerprint != fingerprint:
		return Reservation{}, ErrFingerprintMismatch
	case existing.Status == StatusCompleted:
		return Reservation{State: ReservationStateCompleted, Record: existing}, nil
	default:
		return Reservation{State: ReservationStatePending, Record: existing}, nil
	}
}

// SaveResponse completes the record, creating it if the reservation already expired.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	rec, found := s.records[id]
	if !found {
		rec = newPendingRecord(key, fingerprint, now, ttl)
	} else if rec.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	rec.Status = StatusCompleted
	rec.ResponseStatus = resp.Status
	rec.ResponseHeaders = replayableHeaders(resp.Headers)
	rec.ResponseBody = append([]byte(nil), resp.Body...)
	rec.ExpiresAt = now.Add(ttl)
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}

// CleanupExpired drops up to limit expired records; limit <= 0 means no limit.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if limit > 0 && removed == limit {
			break
		}
		if rec.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}
