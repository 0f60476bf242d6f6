// Package monitor samples a distance sensor at a fixed interval, skipping the cycles in
// which the measurement fails, and exports the results as prometheus metrics.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mklimuk/rangefinder/ranging"
)

const (
	KindTransport = "transport"
	KindDecode    = "decode"
	KindOther     = "other"
)

type Reading struct {
	Time        time.Time
	Millimetres float64
}

type Opts struct {
	Interval   time.Duration
	BufferSize int
	Registerer prometheus.Registerer
	Namespace  string
}

type Opt func(*Opts)

func WithInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = interval
	}
}

func WithBufferSize(size int) Opt {
	return func(o *Opts) {
		o.BufferSize = size
	}
}

// WithRegisterer registers the monitor collectors on reg. Without it no metrics are
// registered.
func WithRegisterer(reg prometheus.Registerer) Opt {
	return func(o *Opts) {
		o.Registerer = reg
	}
}

func WithNamespace(ns string) Opt {
	return func(o *Opts) {
		o.Namespace = ns
	}
}

type Monitor struct {
	sensor ranging.DistanceSensor
	config Opts

	readings chan Reading

	mx      sync.Mutex
	last    Reading
	hasLast bool
	closed  bool

	distance     prometheus.Gauge
	measurements prometheus.Counter
	failures     *prometheus.CounterVec
}

func New(sensor ranging.DistanceSensor, opts ...Opt) (*Monitor, error) {
	config := Opts{
		Interval:   time.Second,
		BufferSize: 16,
		Namespace:  "sr04",
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Interval <= 0 {
		return nil, errors.New("monitor: interval must be positive")
	}
	m := &Monitor{
		sensor:   sensor,
		config:   config,
		readings: make(chan Reading, config.BufferSize),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "distance_millimetres",
			Help:      "Last measured distance in millimetres.",
		}),
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "measurements_total",
			Help:      "Number of attempted measurements.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "measurement_failures_total",
			Help:      "Number of failed measurements by kind.",
		}, []string{"kind"}),
	}
	if config.Registerer != nil {
		for _, c := range []prometheus.Collector{m.distance, m.measurements, m.failures} {
			if err := config.Registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Readings returns the channel successful readings are published on. Readings are
// dropped when nobody keeps up with the channel. The channel is closed when Run returns.
func (m *Monitor) Readings() <-chan Reading {
	return m.readings
}

func (m *Monitor) Last() (Reading, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.last, m.hasLast
}

// Run samples the sensor until ctx is done. The first sample is taken immediately.
// A monitor runs once: Readings is closed on return and later samples are not published.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.close()
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		m.Sample(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) close() {
	m.mx.Lock()
	defer m.mx.Unlock()
	if !m.closed {
		m.closed = true
		close(m.readings)
	}
}

// Sample takes a single measurement. A failed measurement is counted, logged and
// otherwise ignored. A measurement interrupted by ctx is not counted at all.
func (m *Monitor) Sample(ctx context.Context) {
	mm, err := m.sensor.MeasureDistance(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	m.measurements.Inc()
	if err != nil {
		kind := Kind(err)
		m.failures.WithLabelValues(kind).Inc()
		slog.Warn("skipping measurement cycle", "kind", kind, "error", err)
		return
	}
	r := Reading{Time: time.Now(), Millimetres: mm}
	m.distance.Set(mm)
	m.mx.Lock()
	defer m.mx.Unlock()
	m.last = r
	m.hasLast = true
	if m.closed {
		return
	}
	select {
	case m.readings <- r:
	default:
		slog.Debug("reading dropped, channel full")
	}
}

// Kind classifies a measurement error for the failure counter.
func Kind(err error) string {
	switch {
	case ranging.IsTransient(err):
		return KindTransport
	case errors.Is(err, ranging.ErrPayloadSize):
		return KindDecode
	default:
		return KindOther
	}
}
