// Package repofake provides an in-memory refresh.Store for tests and for
// running the server without PostgreSQL. A single mutex around every
// transition gives the per-jti compare-and-set guarantee the contract
// requires.
package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/avasquez-dev/go-token-service/token/refresh"
)

var _ refresh.Store = (*FakeRefreshStore)(nil)

type FakeRefreshStore struct {
	records map[string]*refresh.Record
	lock    sync.Mutex
}

func NewFakeRefreshStore() *FakeRefreshStore {
	return &FakeRefreshStore{records: make(map[string]*refresh.Record)}
}

func (s *FakeRefreshStore) Insert(_ context.Context, record *refresh.Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.records[record.JTI]; ok {
		return refresh.ErrDuplicateID
	}

	stored := *record
	s.records[record.JTI] = &stored
	return nil
}

func (s *FakeRefreshStore) FindByJTI(_ context.Context, jti string) (*refresh.Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	record, ok := s.records[jti]
	if !ok {
		return nil, refresh.ErrNotFound
	}

	found := *record
	return &found, nil
}

func (s *FakeRefreshStore) Revoke(_ context.Context, jti string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	record, ok := s.records[jti]
	if !ok {
		return false, refresh.ErrNotFound
	}
	if record.Revoked {
		return false, nil
	}

	record.Revoked = true
	return true, nil
}

func (s *FakeRefreshStore) RevokeAllForSubject(_ context.Context, subjectID string) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var count int64
	for _, record := range s.records {
		if record.SubjectID == subjectID && !record.Revoked {
			record.Revoked = true
			count++
		}
	}
	return count, nil
}

func (s *FakeRefreshStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var count int64
	for jti, record := range s.records {
		if record.ExpiresAt.Before(cutoff) {
			delete(s.records, jti)
			count++
		}
	}
	return count, nil
}
