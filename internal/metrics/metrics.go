// Package metrics holds the Prometheus collectors for command execution,
// storage operations and the scheme registry.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/schematic/pkg/types"
)

const namespace = "schematic"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics is the collector set. A nil *Metrics records nothing, so callers
// can pass one around without checking.
type Metrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Storage         *prometheus.CounterVec
	Schemes         prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command executions by command, phase and outcome.",
		}, []string{"command", "phase", "outcome"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command phase latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"command", "phase"}),
		Storage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Scheme loads and saves by operation, format and outcome.",
		}, []string{"operation", "format", "outcome"}),
		Schemes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_schemes",
			Help:      "Schemes currently registered.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.Commands, err = register(reg, m.Commands); err != nil {
		return nil, err
	}
	if m.CommandDuration, err = register(reg, m.CommandDuration); err != nil {
		return nil, err
	}
	if m.Storage, err = register(reg, m.Storage); err != nil {
		return nil, err
	}
	if m.Schemes, err = register(reg, m.Schemes); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the collector already registered under
// the same descriptor when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Outcome labels err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case types.IsCancelled(err):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// ObserveCommand records one command phase.
func (m *Metrics) ObserveCommand(command, phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, phase, Outcome(err)).Inc()
	m.CommandDuration.WithLabelValues(command, phase).Observe(d.Seconds())
}

// ObserveStorage records one load or save.
func (m *Metrics) ObserveStorage(operation, format string, err error) {
	if m == nil {
		return
	}
	m.Storage.WithLabelValues(operation, format, Outcome(err)).Inc()
}

// SetSchemes records the registry size.
func (m *Metrics) SetSchemes(n int) {
	if m == nil {
		return
	}
	m.Schemes.Set(float64(n))
}
