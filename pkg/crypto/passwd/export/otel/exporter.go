// Package otel bridges passwd operation counters to OpenTelemetry
// observable instruments.
package otel

import (
	"context"

	"github.com/achuala/go-auth-extn/pkg/crypto/passwd"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource exposes a point in time view of passwd counters. A
// *passwd.PBKDF2 satisfies it directly.
type MetricsSource interface {
	MetricsSnapshot() passwd.MetricsSnapshot
}

type observedCounter struct {
	id         passwd.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter registers observable counters over a snapshot source. Counter
// values are read inside the SDK's collection callback; the exporter holds
// no state beyond the registration.
type Exporter struct {
	source       MetricsSource
	counters     []observedCounter
	registration metric.Registration
}

func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}
	exp := &Exporter{source: source}

	ids := []passwd.MetricID{
		passwd.MetricHashesIssued,
		passwd.MetricComparesMatched,
		passwd.MetricComparesMismatched,
		passwd.MetricMalformedRejected,
	}
	observables := make([]metric.Observable, 0, len(ids))
	for _, id := range ids {
		instrument, err := meter.Int64ObservableCounter(id.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "creating counter %s", id.Name())
		}
		exp.counters = append(exp.counters, observedCounter{id: id, instrument: instrument})
		observables = append(observables, instrument)
	}

	registration, err := meter.RegisterCallback(func(ctx context.Context, observer metric.Observer) error {
		snapshot := exp.source.MetricsSnapshot()
		for _, c := range exp.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		return nil
	}, observables...)
	if err != nil {
		return nil, errors.Wrap(err, "registering metrics callback")
	}
	exp.registration = registration

	return exp, nil
}

// Close unregisters the exporter's callback.
func (e *Exporter) Close() error {
	if e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
