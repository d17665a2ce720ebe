// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package session

import (
	"errors"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// revocations tracks endpoint token IDs invalidated before their
// natural expiry. An entry only needs to outlive the token's remaining
// validity, so every write carries a TTL.
type revocations interface {
	revoke(jti string, ttl time.Duration) error
	isRevoked(jti string) (bool, error)
}

const revokedKeyPrefix = "session:revoked:"

// badgerRevocations persists revoked token IDs so a released session's
// token stays dead across a process restart.
type badgerRevocations struct {
	db     *badger.DB
	prefix []byte
}

func newBadgerRevocations(db *badger.DB) *badgerRevocations {
	return &badgerRevocations{
		db:     db,
		prefix: []byte(revokedKeyPrefix),
	}
}

func (r *badgerRevocations) makeKey(jti string) []byte {
	key := make([]byte, 0, len(r.prefix)+len(jti))
	key = append(key, r.prefix...)
	key = append(key, []byte(jti)...)
	return key
}

func (r *badgerRevocations) revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	return r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(r.makeKey(jti), []byte{1}).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (r *badgerRevocations) isRevoked(jti string) (bool, error) {
	revoked := false

	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(r.makeKey(jti))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		revoked = true
		return nil
	})

	return revoked, err
}

// memoryRevocations is the in-process fallback used when the registry
// runs without a persistence layer. Lapsed entries are pruned on write.
type memoryRevocations struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	now       func() time.Time
}

func newMemoryRevocations(now func() time.Time) *memoryRevocations {
	return &memoryRevocations{
		deadlines: make(map[string]time.Time),
		now:       now,
	}
}

func (r *memoryRevocations) revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, deadline := range r.deadlines {
		if now.After(deadline) {
			delete(r.deadlines, id)
		}
	}
	r.deadlines[jti] = now.Add(ttl)

	return nil
}

func (r *memoryRevocations) isRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline, ok := r.deadlines[jti]
	if !ok {
		return false, nil
	}
	if r.now().After(deadline) {
		delete(r.deadlines, jti)
		return false, nil
	}

	return true, nil
}
