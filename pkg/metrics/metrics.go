// Package metrics counts validations and their failures.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks validation counts and timings using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	validationsTotal atomic.Uint64
	validationsValid atomic.Uint64

	// Timing (stored as nanoseconds)
	timeTotal atomic.Uint64
	timeMin   atomic.Uint64
	timeMax   atomic.Uint64

	// Failures per kind, e.g. "required" or "reference"
	failures sync.Map // map[string]*atomic.Uint64
}

// New creates a Metrics instance.
func New() *Metrics {
	m := &Metrics{}
	// First recorded duration becomes the minimum.
	m.timeMin.Store(^uint64(0))
	return m
}

// RecordValidation records a completed validation. failureKind names the
// kind of the reported failure and is ignored for valid records.
func (m *Metrics) RecordValidation(duration time.Duration, valid bool, failureKind string) {
	m.validationsTotal.Add(1)
	if valid {
		m.validationsValid.Add(1)
	} else if failureKind != "" {
		m.counter(failureKind).Add(1)
	}

	ns := uint64(max(duration.Nanoseconds(), 0))
	m.timeTotal.Add(ns)
	for {
		old := m.timeMin.Load()
		if ns >= old || m.timeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.timeMax.Load()
		if ns <= old || m.timeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

func (m *Metrics) counter(kind string) *atomic.Uint64 {
	if v, ok := m.failures.Load(kind); ok {
		return v.(*atomic.Uint64)
	}
	actual, _ := m.failures.LoadOrStore(kind, &atomic.Uint64{})
	return actual.(*atomic.Uint64)
}

// ValidationsTotal returns the number of validations performed.
func (m *Metrics) ValidationsTotal() uint64 {
	return m.validationsTotal.Load()
}

// ValidationsValid returns the number of validations that passed.
func (m *Metrics) ValidationsValid() uint64 {
	return m.validationsValid.Load()
}

// ValidationRate returns the share of valid validations (0.0 to 1.0).
func (m *Metrics) ValidationRate() float64 {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return float64(m.validationsValid.Load()) / float64(total)
}

// AverageTime returns the mean validation duration.
func (m *Metrics) AverageTime() time.Duration {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.timeTotal.Load() / total) //nolint:gosec // nanoseconds fit in int64
}

// MinTime returns the shortest validation duration.
func (m *Metrics) MinTime() time.Duration {
	v := m.timeMin.Load()
	if v == ^uint64(0) {
		return 0
	}
	return time.Duration(v) //nolint:gosec // nanoseconds fit in int64
}

// MaxTime returns the longest validation duration.
func (m *Metrics) MaxTime() time.Duration {
	return time.Duration(m.timeMax.Load()) //nolint:gosec // nanoseconds fit in int64
}

// Failures returns the failure count of one kind.
func (m *Metrics) Failures(kind string) uint64 {
	if v, ok := m.failures.Load(kind); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total    uint64
	Valid    uint64
	Average  time.Duration
	Min      time.Duration
	Max      time.Duration
	Failures map[string]uint64
}

// FailureKinds returns the kinds in Failures in sorted order.
func (s Snapshot) FailureKinds() []string {
	kinds := make([]string, 0, len(s.Failures))
	for k := range s.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Total:    m.ValidationsTotal(),
		Valid:    m.ValidationsValid(),
		Average:  m.AverageTime(),
		Min:      m.MinTime(),
		Max:      m.MaxTime(),
		Failures: make(map[string]uint64),
	}
	m.failures.Range(func(key, value any) bool {
		s.Failures[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return s
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.validationsTotal.Store(0)
	m.validationsValid.Store(0)
	m.timeTotal.Store(0)
	m.timeMin.Store(^uint64(0))
	m.timeMax.Store(0)
	m.failures.Range(func(key, _ any) bool {
		m.failures.Delete(key)
		return true
	})
}
