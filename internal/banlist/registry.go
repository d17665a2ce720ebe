// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package banlist maintains the IP and device ban registry. Bans escalate
// with repeat violations: duration grows linearly with the violation count
// up to a cap, and past the permanent threshold the ban stops expiring.
// Records are kept past their active window so the escalation ladder
// indexes real history rather than resetting whenever a ban lapses.
package banlist

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

	"github.com/tomtom215/invigilo/internal/cache"
	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
	"github.com/tomtom215/invigilo/internal/models"
)

// Key prefixes for Badger storage. Device keys store a pointer to the IP
// record so one ban covers both lookups without duplicating state.
const (
	banIPKeyPrefix     = "ban:ip:"
	banDeviceKeyPrefix = "ban:dev:"
)

// ErrNotBanned is returned by Lift for unknown clients.
var ErrNotBanned = errors.New("client is not banned")

// Registry tracks banned clients in Badger with TTL-based expiry.
type Registry struct {
	db  *badger.DB
	cfg config.BanlistConfig

	// failures tracks validation failures per source IP; crossing the
	// configured limit inside the window feeds an automatic violation.
	failures *cache.SlidingWindowStore

	// ipLocks serializes read-modify-write per IP so concurrent
	// violations cannot drop counts.
	ipLocks sync.Map
}

// NewRegistry creates a ban registry over the shared Badger database.
func NewRegistry(db *badger.DB, cfg config.BanlistConfig) *Registry {
	if cfg.BaseDuration <= 0 {
		cfg.BaseDuration = time.Hour
	}
	if cfg.DurationCap <= 0 {
		cfg.DurationCap = 5
	}
	if cfg.PermanentThreshold <= 0 {
		cfg.PermanentThreshold = 10
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 10 * time.Minute
	}
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 3
	}

	return &Registry{
		db:       db,
		cfg:      cfg,
		failures: cache.NewSlidingWindowStore(cfg.FailureWindow, 10, 10000),
	}
}

// lockIP returns the per-IP mutex, creating it on first use.
func (r *Registry) lockIP(ip string) *sync.Mutex {
	mu, _ := r.ipLocks.LoadOrStore(ip, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// RecordViolation escalates the ban for a client. The new ban runs for
// BaseDuration times the violation count, capped at DurationCap multiples;
// at PermanentThreshold violations the ban becomes permanent.
func (r *Registry) RecordViolation(ctx context.Context, ip, userAgent, deviceKey, reason string) (*models.BannedClient, error) {
	if ip == "" {
		return nil, fmt.Errorf("ban violation requires an IP address")
	}

	mu := r.lockIP(ip)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()

	// Load any existing record, including lapsed ones still inside the
	// history retention window.
	existing, err := r.getByIP(ip)
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("load ban record: %w", err)
	}

	client := &models.BannedClient{
		IPAddress: ip,
		UserAgent: userAgent,
		DeviceKey: deviceKey,
		BanReason: reason,
		CreatedAt: now,
	}
	if existing != nil {
		client.ViolationCount = existing.ViolationCount
		client.CreatedAt = existing.CreatedAt
		if client.DeviceKey == "" {
			client.DeviceKey = existing.DeviceKey
		}
		if client.UserAgent == "" {
			client.UserAgent = existing.UserAgent
		}
	}

	client.ViolationCount++
	client.UpdatedAt = now

	multiplier := client.ViolationCount
	if multiplier > r.cfg.DurationCap {
		multiplier = r.cfg.DurationCap
	}
	client.BanUntil = now.Add(r.cfg.BaseDuration * time.Duration(multiplier))
	client.IsPermanent = client.ViolationCount >= r.cfg.PermanentThreshold

	if err := r.put(client); err != nil {
		return nil, err
	}

	metrics.RecordBanViolation(client.IsPermanent)
	logging.Warn().
		Str("ip", ip).
		Str("reason", reason).
		Int("violation_count", client.ViolationCount).
		Time("ban_until", client.BanUntil).
		Bool("permanent", client.IsPermanent).
		Msg("Client ban recorded")

	return client, nil
}

// RecordValidationFailure counts a validation failure for the source IP.
// When the IP crosses FailureLimit failures inside FailureWindow the
// registry records a violation automatically and resets the window.
// Returns the resulting ban, or nil when the client is merely counted.
func (r *Registry) RecordValidationFailure(ctx context.Context, ip, userAgent, deviceKey string) (*models.BannedClient, error) {
	if ip == "" {
		return nil, nil
	}

	r.failures.Increment(ip)
	if r.failures.Count(ip) < int64(r.cfg.FailureLimit) {
		return nil, nil
	}

	r.failures.Remove(ip)
	return r.RecordViolation(ctx, ip, userAgent, deviceKey, "repeated validation failures")
}

// IsBanned returns the active ban covering the IP or device key, or nil.
// Lapsed records inside the retention window do not count as banned.
func (r *Registry) IsBanned(ctx context.Context, ip, deviceKey string) (*models.BannedClient, error) {
	now := time.Now().UTC()

	if ip != "" {
		client, err := r.getByIP(ip)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("lookup ban by ip: %w", err)
		}
		if client != nil && client.Banned(now) {
			return client, nil
		}
	}

	if deviceKey != "" {
		client, err := r.getByDeviceKey(deviceKey)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("lookup ban by device key: %w", err)
		}
		if client != nil && client.Banned(now) {
			return client, nil
		}
	}

	return nil, nil
}

// Lift removes the ban record for an IP, including its device alias.
func (r *Registry) Lift(ctx context.Context, ip string) error {
	mu := r.lockIP(ip)
	mu.Lock()
	defer mu.Unlock()

	client, err := r.getByIP(ip)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotBanned
	}
	if err != nil {
		return fmt.Errorf("load ban record: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(banIPKeyPrefix + ip)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if client.DeviceKey != "" {
			if err := txn.Delete([]byte(banDeviceKeyPrefix + client.DeviceKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete ban record: %w", err)
	}

	logging.Info().Str("ip", ip).Msg("Client ban lifted")
	return nil
}

// List returns all ban records inside the retention window, active or
// lapsed, most recently updated first.
func (r *Registry) List(ctx context.Context) ([]models.BannedClient, error) {
	var clients []models.BannedClient

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(banIPKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var client models.BannedClient
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &client)
			})
			if err != nil {
				logging.Warn().Err(err).Msg("Skipping unreadable ban record")
				continue
			}
			clients = append(clients, client)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ban records: %w", err)
	}

	// Most recently updated first.
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].UpdatedAt.After(clients[j].UpdatedAt)
	})

	return clients, nil
}

// Import bulk-loads ban records, used by the admin import endpoint to seed
// a fresh deployment from an export. Existing records with higher
// violation counts are preserved.
func (r *Registry) Import(ctx context.Context, clients []models.BannedClient) (int, error) {
	imported := 0

	for i := range clients {
		client := clients[i]
		if client.IPAddress == "" {
			continue
		}

		mu := r.lockIP(client.IPAddress)
		mu.Lock()

		existing, err := r.getByIP(client.IPAddress)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			mu.Unlock()
			return imported, fmt.Errorf("load ban record for %s: %w", client.IPAddress, err)
		}
		if existing != nil && existing.ViolationCount >= client.ViolationCount {
			mu.Unlock()
			continue
		}

		now := time.Now().UTC()
		if client.CreatedAt.IsZero() {
			client.CreatedAt = now
		}
		client.UpdatedAt = now

		if err := r.put(&client); err != nil {
			mu.Unlock()
			return imported, err
		}
		imported++
		mu.Unlock()
	}

	logging.Info().Int("imported", imported).Int("offered", len(clients)).Msg("Ban records imported")
	return imported, nil
}

// getByIP loads the record for an IP. Returns badger.ErrKeyNotFound when
// absent.
func (r *Registry) getByIP(ip string) (*models.BannedClient, error) {
	var client models.BannedClient

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(banIPKeyPrefix + ip))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &client)
		})
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// getByDeviceKey resolves the device alias to its IP record.
func (r *Registry) getByDeviceKey(deviceKey string) (*models.BannedClient, error) {
	var ip string

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(banDeviceKeyPrefix + deviceKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ip = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Alias may outlive the IP record if retention settings changed.
	client, err := r.getByIP(strings.TrimSpace(ip))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return client, err
}

// put writes the record and its device alias with a TTL covering the
// remaining ban plus the history retention window. Permanent bans carry
// no TTL.
func (r *Registry) put(client *models.BannedClient) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("marshal ban record: %w", err)
	}

	var ttl time.Duration
	if !client.IsPermanent {
		ttl = client.Remaining(time.Now().UTC()) + r.cfg.HistoryRetention
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		ipKey := []byte(banIPKeyPrefix + client.IPAddress)
		entry := badger.NewEntry(ipKey, data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}

		if client.DeviceKey != "" {
			devKey := []byte(banDeviceKeyPrefix + client.DeviceKey)
			alias := badger.NewEntry(devKey, []byte(client.IPAddress))
			if ttl > 0 {
				alias = alias.WithTTL(ttl)
			}
			if err := txn.SetEntry(alias); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store ban record: %w", err)
	}
	return nil
}
