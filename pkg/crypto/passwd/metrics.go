package passwd

import "sync/atomic"

// MetricID identifies an operation counter.
type MetricID int

const (
	MetricHashesIssued MetricID = iota
	MetricComparesMatched
	MetricComparesMismatched
	MetricMalformedRejected

	metricCount
)

var metricNames = map[MetricID]string{
	MetricHashesIssued:       "passwd.hashes.issued",
	MetricComparesMatched:    "passwd.compares.matched",
	MetricComparesMismatched: "passwd.compares.mismatched",
	MetricMalformedRejected:  "passwd.malformed.rejected",
}

// Name returns the stable instrument name of the counter.
func (id MetricID) Name() string {
	return metricNames[id]
}

// MetricsSnapshot is a point in time copy of a hasher's counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

type metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) inc(id MetricID) {
	if m == nil {
		return
	}
	m.counters[id].Add(1)
}

func (m *metrics) snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
