// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package netintel

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// entry carries the classification attached to an address or prefix.
type entry struct {
	class    string
	provider string
}

type classifiedPrefix struct {
	prefix netip.Prefix
	entry  entry
}

// Set is the in-memory classified address set. Single addresses live in
// maps for O(1) hits; prefixes are scanned linearly with the most
// specific match winning. Feeds are range-heavy but small (thousands of
// prefixes), so the scan stays cheap.
type Set struct {
	mu       sync.RWMutex
	exact    map[netip.Addr]entry
	prefixes []classifiedPrefix
	byClass  map[string]int
	loadedAt time.Time
}

// NewSet creates an empty address set.
func NewSet() *Set {
	return &Set{
		exact:   make(map[netip.Addr]entry),
		byClass: make(map[string]int),
	}
}

// Add inserts one classified block. Accepts a CIDR prefix or a bare
// address; the class must be canonical.
func (s *Set) Add(cidr, class, provider string) error {
	e := entry{class: class, provider: provider}

	if addr, err := netip.ParseAddr(cidr); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, dup := s.exact[addr]; !dup {
			s.byClass[class]++
		}
		s.exact[addr] = e
		return nil
	}

	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("not an address or prefix: %q", cidr)
	}
	prefix = prefix.Masked()

	s.mu.Lock()
	defer s.mu.Unlock()
	if prefix.IsSingleIP() {
		addr := prefix.Addr()
		if _, dup := s.exact[addr]; !dup {
			s.byClass[class]++
		}
		s.exact[addr] = e
		return nil
	}
	s.prefixes = append(s.prefixes, classifiedPrefix{prefix: prefix, entry: e})
	s.byClass[class]++
	return nil
}

// Replace swaps the whole set for the given ranges in one step. Readers
// see either the old population or the new one, never a partial import.
// Returns how many ranges loaded and the per-range parse failures.
func (s *Set) Replace(ranges []Range) (int, []string) {
	exact := make(map[netip.Addr]entry, len(ranges))
	var prefixes []classifiedPrefix
	byClass := make(map[string]int)
	var errs []string
	added := 0

	for _, r := range ranges {
		e := entry{class: r.Class, provider: r.Provider}

		if addr, err := netip.ParseAddr(r.CIDR); err == nil {
			if _, dup := exact[addr]; !dup {
				byClass[r.Class]++
				added++
			}
			exact[addr] = e
			continue
		}

		prefix, err := netip.ParsePrefix(r.CIDR)
		if err != nil {
			errs = append(errs, fmt.Sprintf("bad cidr %q", r.CIDR))
			continue
		}
		prefix = prefix.Masked()
		if prefix.IsSingleIP() {
			addr := prefix.Addr()
			if _, dup := exact[addr]; !dup {
				byClass[r.Class]++
				added++
			}
			exact[addr] = e
			continue
		}
		prefixes = append(prefixes, classifiedPrefix{prefix: prefix, entry: e})
		byClass[r.Class]++
		added++
	}

	s.mu.Lock()
	s.exact = exact
	s.prefixes = prefixes
	s.byClass = byClass
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	return added, errs
}

// Classify returns the class and provider for an address. Unparseable
// addresses and misses both return found=false.
func (s *Set) Classify(ipStr string) (class, provider string, found bool) {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return "", "", false
	}
	addr = addr.Unmap()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.exact[addr]; ok {
		return e.class, e.provider, true
	}

	// Most specific prefix wins.
	best := -1
	var bestEntry entry
	for _, cp := range s.prefixes {
		if cp.prefix.Contains(addr) && cp.prefix.Bits() > best {
			best = cp.prefix.Bits()
			bestEntry = cp.entry
		}
	}
	if best < 0 {
		return "", "", false
	}
	return bestEntry.class, bestEntry.provider, true
}

// Contains reports whether an address is in the set.
func (s *Set) Contains(ipStr string) bool {
	_, _, found := s.Classify(ipStr)
	return found
}

// Len returns the number of loaded blocks.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exact) + len(s.prefixes)
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exact = make(map[netip.Addr]entry)
	s.prefixes = nil
	s.byClass = make(map[string]int)
	s.loadedAt = time.Time{}
}

// Stats returns counts by class.
func (s *Set) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byClass := make(map[string]int, len(s.byClass))
	for k, v := range s.byClass {
		byClass[k] = v
	}
	return Stats{
		TotalRanges: len(s.exact) + len(s.prefixes),
		ByClass:     byClass,
		LoadedAt:    s.loadedAt,
	}
}
