// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package netintel

import (
	"strings"
	"time"
)

// Network classes. Exams run from residential connections; the other
// classes indicate traffic routed through infrastructure a student would
// only use to mask their location or automate a client.
const (
	ClassVPN         = "vpn"
	ClassProxy       = "proxy"
	ClassHosting     = "hosting"
	ClassTor         = "tor"
	ClassResidential = "residential"
)

// flaggedClasses are the classes the validator treats as a signal.
var flaggedClasses = map[string]bool{
	ClassVPN:     true,
	ClassProxy:   true,
	ClassHosting: true,
	ClassTor:     true,
}

// Flagged reports whether a network class counts against the client
// during validation.
func Flagged(class string) bool {
	return flaggedClasses[class]
}

// normalizeClass maps feed spellings onto the canonical class names.
// Returns "" for classes the service does not track.
func normalizeClass(class string) string {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case ClassVPN:
		return ClassVPN
	case ClassProxy, "open_proxy":
		return ClassProxy
	case ClassHosting, "datacenter", "dc", "cloud":
		return ClassHosting
	case ClassTor, "tor_exit":
		return ClassTor
	case ClassResidential, "isp":
		return ClassResidential
	default:
		return ""
	}
}

// Range is one classified address block. CIDR holds either a prefix or a
// bare address.
type Range struct {
	CIDR       string    `json:"cidr"`
	Class      string    `json:"class"`
	Provider   string    `json:"provider,omitempty"`
	Source     string    `json:"source,omitempty"`
	ImportedAt time.Time `json:"imported_at,omitempty"`
}

// Feed is the import document shape:
//
//	{
//	  "version": 1,
//	  "source": "corp-intel",
//	  "ranges": [
//	    {"cidr": "198.51.100.0/24", "class": "vpn", "provider": "nordvpn"},
//	    {"cidr": "203.0.113.7", "class": "proxy"}
//	  ]
//	}
type Feed struct {
	Version int         `json:"version"`
	Source  string      `json:"source,omitempty"`
	Ranges  []FeedRange `json:"ranges"`
}

// FeedRange is one entry in an import feed.
type FeedRange struct {
	CIDR     string `json:"cidr"`
	Class    string `json:"class"`
	Provider string `json:"provider,omitempty"`
}

// ImportResult summarizes one feed import.
type ImportResult struct {
	RangesImported int           `json:"ranges_imported"`
	Skipped        int           `json:"skipped"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Stats describes the loaded address sets.
type Stats struct {
	TotalRanges int            `json:"total_ranges"`
	ByClass     map[string]int `json:"by_class"`
	LoadedAt    time.Time      `json:"loaded_at"`
}

// LookupResult is the admin-facing answer for a single address.
type LookupResult struct {
	IP       string `json:"ip"`
	Found    bool   `json:"found"`
	Class    string `json:"class,omitempty"`
	Provider string `json:"provider,omitempty"`
	Flagged  bool   `json:"flagged"`
}
