/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store holds the in-memory Presentation store (spec §4.1). It is
// the sole owner of Presentation records; every other component receives
// read-only snapshots (domain.Presentation.Clone) and must call Store
// again to persist a mutation.
package store

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/trustbloc/oidc4vp-verifier/pkg/domain"
)

// record pairs a Presentation with a version counter used for the
// optimistic compare-and-swap the concurrency policy (spec §5) asks for:
// "Implementations may use per-record locks or optimistic compare-and-swap
// on state."
type record struct {
	presentation *domain.Presentation
	version      uint64
}

// Store is a concurrent mapping from TransactionID to Presentation, with a
// secondary RequestID -> TransactionID index kept atomically in step with
// it (I1, I2), plus a third ResponseCode -> TransactionID index for the
// Redirect get-wallet-response flow (§4.5, §6).
//
// All three maps are guarded by a single RWMutex. Per spec §5 this is
// acceptable: "handlers are naturally short", and a single Presentation is
// never the target of more than a handful of concurrent callers.
type Store struct {
	mu            sync.RWMutex
	byTransaction map[domain.TransactionID]*record
	byRequest     map[domain.RequestID]domain.TransactionID
	byCode        map[domain.ResponseCode]domain.TransactionID
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byTransaction: make(map[domain.TransactionID]*record),
		byRequest:     make(map[domain.RequestID]domain.TransactionID),
		byCode:        make(map[domain.ResponseCode]domain.TransactionID),
	}
}

// Put is an upsert-by-TransactionID. It maintains the RequestID secondary
// index atomically with the primary record (I1, I2), and the ResponseCode
// index when the Presentation carries one (§6). Put is idempotent for an
// identical Presentation.
func (s *Store) Put(p *domain.Presentation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(p)
}

func (s *Store) putLocked(p *domain.Presentation) {
	cp := p.Clone()

	existing, ok := s.byTransaction[cp.ID]
	version := uint64(1)

	if ok {
		version = existing.version + 1
	}

	s.byTransaction[cp.ID] = &record{presentation: cp, version: version}
	s.byRequest[cp.RequestID] = cp.ID

	if cp.Status == domain.StatusSubmitted && cp.ResponseCode != "" {
		s.byCode[cp.ResponseCode] = cp.ID
	}
}

// LoadByTransactionID returns a read-only snapshot of the Presentation, or
// nil if TransactionID is unknown.
func (s *Store) LoadByTransactionID(id domain.TransactionID) *domain.Presentation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byTransaction[id]
	if !ok {
		return nil
	}

	return r.presentation.Clone()
}

// LoadByRequestID returns a read-only snapshot of the Presentation indexed
// under RequestID, or nil if unknown.
func (s *Store) LoadByRequestID(id domain.RequestID) *domain.Presentation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txID, ok := s.byRequest[id]
	if !ok {
		return nil
	}

	return s.byTransaction[txID].presentation.Clone()
}

// LoadByResponseCode returns a read-only snapshot of the Submitted
// Presentation the code was minted for, or nil if the code is unknown or
// already consumed.
func (s *Store) LoadByResponseCode(code domain.ResponseCode) *domain.Presentation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txID, ok := s.byCode[code]
	if !ok {
		return nil
	}

	return s.byTransaction[txID].presentation.Clone()
}

// ConsumeResponseCode removes code from the index, so a second GetWalletResponse
// retrieval with the same code is indistinguishable from one that was never
// issued (spec §4.5, P2: "A ResponseCode is consumed at most once").
func (s *Store) ConsumeResponseCode(code domain.ResponseCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byCode, code)
}

// List returns a read-only snapshot of every stored Presentation, for the
// timeout sweeper to scan (spec §4.6). Not named in spec §4.1's operation
// list, which covers only the per-identifier lookups a request handler
// needs; the sweeper is the one caller that legitimately needs the full
// set.
func (s *Store) List() []*domain.Presentation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Presentation, 0, len(s.byTransaction))

	for _, r := range s.byTransaction {
		out = append(out, r.presentation.Clone())
	}

	return out
}

// ErrConcurrentUpdate is returned by CompareAndSwap when the version read by
// the caller is stale: another goroutine committed a transition first.
var ErrConcurrentUpdate = errors.New("presentation was concurrently modified")

// CompareAndSwap loads the current Presentation for id, lets mutate decide
// the next state (returning an error aborts with no store effect), and
// commits the result — failing with ErrConcurrentUpdate if another writer
// raced in between the load passed to mutate and the commit.
//
// This is the serialization point spec §5 requires for concurrent
// PostWalletResponse calls on the same RequestID: "at most one can observe
// RequestObjectRetrieved and succeed; the loser fails with
// PresentationNotInExpectedState" — callers translate ErrConcurrentUpdate
// into that domain error, since by the time the loser retries the record is
// no longer in the state it expected.
func (s *Store) CompareAndSwap(
	id domain.TransactionID,
	mutate func(current *domain.Presentation) (*domain.Presentation, error),
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byTransaction[id]
	if !ok {
		return mutateNotFound(mutate)
	}

	before := existing.version

	next, err := mutate(existing.presentation.Clone())
	if err != nil {
		return err
	}

	// re-check the version before committing. The write lock is held across
	// mutate, so no other writer can commit in between; callers do their
	// crypto verification before calling CompareAndSwap.
	current, ok := s.byTransaction[id]
	if !ok || current.version != before {
		return ErrConcurrentUpdate
	}

	s.putLocked(next)

	return nil
}

func mutateNotFound(mutate func(current *domain.Presentation) (*domain.Presentation, error)) error {
	_, err := mutate(nil)
	if err != nil {
		return err
	}

	return errors.New("mutate must return an error when given a nil presentation")
}
