// Package metrics exports catalog refresh telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

var _ driven.CatalogObserver = (*Observer)(nil)

// Refresh outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Observer records catalog refreshes. A nil *Observer discards everything.
type Observer struct {
	refreshDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
}

// NewObserver registers the catalog metrics under namespace on reg. Metrics
// already registered by an earlier observer are reused.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "modeldesk"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "refresh_duration_seconds",
		Help:      "Latency of model catalog fetches.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "refresh_total",
		Help:      "Count of model catalog refreshes by outcome.",
	}, []string{"outcome"})
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "cache_hits_total",
		Help:      "Count of refresh requests served by a fresh catalog.",
	})

	var err error
	o := &Observer{}
	if o.refreshDuration, err = register(reg, duration); err != nil {
		return nil, fmt.Errorf("register refresh histogram: %w", err)
	}
	if o.refreshTotal, err = register(reg, total); err != nil {
		return nil, fmt.Errorf("register refresh counter: %w", err)
	}
	if o.cacheHits, err = register(reg, hits); err != nil {
		return nil, fmt.Errorf("register cache hit counter: %w", err)
	}
	return o, nil
}

// register adds c to reg, returning the existing collector of the same type
// when an identical one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	var zero C
	return zero, err
}

// RecordRefresh tracks a completed fetch.
func (o *Observer) RecordRefresh(duration time.Duration, err error) {
	if o == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	o.refreshDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	o.refreshTotal.WithLabelValues(outcome).Inc()
}

// RecordCancelled counts a fetch abandoned by cancellation or supersession.
func (o *Observer) RecordCancelled() {
	if o == nil {
		return
	}
	o.refreshTotal.WithLabelValues(OutcomeCancelled).Inc()
}

func (o *Observer) RecordCacheHit() {
	if o == nil {
		return
	}
	o.cacheHits.Inc()
}
