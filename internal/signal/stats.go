// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package signal

import "math"

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance returns the population variance, 0 for fewer than two samples.
func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

// coefficientOfVariation returns stddev/mean. A non-positive mean returns
// MaxFloat64 so a floor comparison never flags it.
func coefficientOfVariation(values []float64) float64 {
	m := mean(values)
	if m <= 0 {
		return math.MaxFloat64
	}
	return math.Sqrt(variance(values)) / m
}

// finite reports whether v is a usable number. Telemetry fields are
// client-controlled, so NaN and infinities must be screened before any
// arithmetic.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
