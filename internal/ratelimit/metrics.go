package ratelimit

import (
	"sync/atomic"
	"time"
)

// Metrics counts limiter decisions.
type Metrics struct {
	allowed   atomic.Int64
	denied    atomic.Int64
	fallbacks atomic.Int64
	since     time.Time
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Allowed   int64     `json:"allowed"`
	Denied    int64     `json:"denied"`
	Fallbacks int64     `json:"fallbacks"`
	Since     time.Time `json:"since"`
}

// NewMetrics creates zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{since: time.Now().UTC()}
}

func (m *Metrics) record(allowed, fallback bool) {
	if allowed {
		m.allowed.Add(1)
	} else {
		m.denied.Add(1)
	}
	if fallback {
		m.fallbacks.Add(1)
	}
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Allowed:   m.allowed.Load(),
		Denied:    m.denied.Load(),
		Fallbacks: m.fallbacks.Load(),
		Since:     m.since,
	}
}
