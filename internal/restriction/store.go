// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package restriction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/models"
)

// ErrNotFound is returned for lookups of unknown restrictions.
var ErrNotFound = errors.New("restriction not found")

// Store persists restrictions. Records are kept past their active window
// (TTL covers remaining time plus history retention) so the duration
// ladder indexes real history; "expired" is always computed from the
// record's fields, never from its absence.
type Store interface {
	// Get retrieves a restriction by ID.
	Get(ctx context.Context, id string) (*models.Restriction, error)

	// GetByKey retrieves the restriction for a (student, type, scope) key.
	GetByKey(ctx context.Context, key string) (*models.Restriction, error)

	// GetByIP retrieves the ip_ban restriction covering an address,
	// regardless of which student earned it.
	GetByIP(ctx context.Context, ip string) (*models.Restriction, error)

	// Put upserts a restriction under its uniqueness key.
	Put(ctx context.Context, r *models.Restriction) error

	// Delete removes a restriction and its aliases.
	Delete(ctx context.Context, r *models.Restriction) error

	// ListByStudent returns all records for a student.
	ListByStudent(ctx context.Context, studentID string) ([]models.Restriction, error)

	// List returns all records, most recently updated first.
	List(ctx context.Context) ([]models.Restriction, error)
}

// Key prefixes for Badger storage. ID and IP entries are aliases holding
// the primary key so every record exists exactly once.
const (
	restrKeyPrefix = "restr:key:"
	restrIDPrefix  = "restr:id:"
	restrIPPrefix  = "restr:ip:"
)

// BadgerStore implements Store on the shared Badger database.
type BadgerStore struct {
	db *badger.DB
	// historyRetention extends record TTL past the active window.
	historyRetention time.Duration
}

// NewBadgerStore creates a Badger-backed restriction store.
func NewBadgerStore(db *badger.DB, historyRetention time.Duration) *BadgerStore {
	return &BadgerStore{db: db, historyRetention: historyRetention}
}

// Get retrieves a restriction by ID via the ID alias.
func (s *BadgerStore) Get(ctx context.Context, id string) (*models.Restriction, error) {
	key, err := s.resolveAlias(restrIDPrefix + id)
	if err != nil {
		return nil, err
	}
	return s.GetByKey(ctx, key)
}

// GetByKey retrieves the restriction for a uniqueness key.
func (s *BadgerStore) GetByKey(ctx context.Context, key string) (*models.Restriction, error) {
	var r models.Restriction

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(restrKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get restriction: %w", err)
	}
	return &r, nil
}

// GetByIP resolves the ip_ban alias for an address.
func (s *BadgerStore) GetByIP(ctx context.Context, ip string) (*models.Restriction, error) {
	key, err := s.resolveAlias(restrIPPrefix + ip)
	if err != nil {
		return nil, err
	}
	return s.GetByKey(ctx, key)
}

// resolveAlias reads an alias entry holding a primary key.
func (s *BadgerStore) resolveAlias(aliasKey string) (string, error) {
	var key string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(aliasKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			key = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve restriction alias: %w", err)
	}
	return key, nil
}

// Put upserts the record and refreshes its aliases. Non-permanent records
// carry a TTL of remaining-active plus history retention; permanent
// records never expire from storage.
func (s *BadgerStore) Put(ctx context.Context, r *models.Restriction) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal restriction: %w", err)
	}

	var ttl time.Duration
	if !r.IsPermanent {
		remaining := time.Until(r.RestrictedUntil)
		if remaining < 0 {
			remaining = 0
		}
		ttl = remaining + s.historyRetention
	}

	key := r.Key()
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(restrKeyPrefix+key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}

		idAlias := badger.NewEntry([]byte(restrIDPrefix+r.ID), []byte(key))
		if ttl > 0 {
			idAlias = idAlias.WithTTL(ttl)
		}
		if err := txn.SetEntry(idAlias); err != nil {
			return err
		}

		if r.Type == models.RestrictionIPBan {
			ipAlias := badger.NewEntry([]byte(restrIPPrefix+r.Scope), []byte(key))
			if ttl > 0 {
				ipAlias = ipAlias.WithTTL(ttl)
			}
			if err := txn.SetEntry(ipAlias); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("store restriction: %w", err)
	}
	return nil
}

// Delete removes the record and its aliases.
func (s *BadgerStore) Delete(ctx context.Context, r *models.Restriction) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		keys := [][]byte{
			[]byte(restrKeyPrefix + r.Key()),
			[]byte(restrIDPrefix + r.ID),
		}
		if r.Type == models.RestrictionIPBan {
			keys = append(keys, []byte(restrIPPrefix+r.Scope))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete restriction: %w", err)
	}
	return nil
}

// ListByStudent scans the primary prefix for one student's records.
func (s *BadgerStore) ListByStudent(ctx context.Context, studentID string) ([]models.Restriction, error) {
	return s.scan(restrKeyPrefix + studentID + ":")
}

// List returns all records, most recently updated first.
func (s *BadgerStore) List(ctx context.Context) ([]models.Restriction, error) {
	records, err := s.scan(restrKeyPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// scan iterates primary records under a key prefix.
func (s *BadgerStore) scan(prefix string) ([]models.Restriction, error) {
	var records []models.Restriction

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var r models.Restriction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				continue
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan restrictions: %w", err)
	}
	return records, nil
}

// MemoryStore implements Store in memory for tests and standalone use.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string]*models.Restriction
	byID  map[string]string // id -> key
	byIP  map[string]string // ip -> key (ip_ban only)

	// FailGets forces Get* calls to error, for fail-open tests.
	FailGets bool
}

// NewMemoryStore creates an empty in-memory restriction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string]*models.Restriction),
		byID:  make(map[string]string),
		byIP:  make(map[string]string),
	}
}

var errStoreUnavailable = errors.New("restriction store unavailable")

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGets {
		return nil, errStoreUnavailable
	}
	key, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.getLocked(key)
}

func (s *MemoryStore) GetByKey(ctx context.Context, key string) (*models.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGets {
		return nil, errStoreUnavailable
	}
	return s.getLocked(key)
}

func (s *MemoryStore) GetByIP(ctx context.Context, ip string) (*models.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailGets {
		return nil, errStoreUnavailable
	}
	key, ok := s.byIP[ip]
	if !ok {
		return nil, ErrNotFound
	}
	return s.getLocked(key)
}

func (s *MemoryStore) getLocked(key string) (*models.Restriction, error) {
	r, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Put(ctx context.Context, r *models.Restriction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	key := r.Key()
	s.byKey[key] = &cp
	s.byID[r.ID] = key
	if r.Type == models.RestrictionIPBan {
		s.byIP[r.Scope] = key
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, r *models.Restriction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byKey, r.Key())
	delete(s.byID, r.ID)
	if r.Type == models.RestrictionIPBan {
		delete(s.byIP, r.Scope)
	}
	return nil
}

func (s *MemoryStore) ListByStudent(ctx context.Context, studentID string) ([]models.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.Restriction
	prefix := studentID + ":"
	for key, r := range s.byKey {
		if strings.HasPrefix(key, prefix) {
			records = append(records, *r)
		}
	}
	return records, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Restriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.Restriction, 0, len(s.byKey))
	for _, r := range s.byKey {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}
