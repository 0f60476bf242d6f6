package ranging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/rangefinder"
)

// HC-SR04d (RCWL-9610) fixed 7-bit I2C address. On the wire this becomes 0xAE for
// writes and 0xAF for reads.
const SR04DefaultAddress = 0x57

const (
	cmdMeasureStart byte = 0x01
	payloadSize          = 3
)

const (
	// DefaultProcessingDelay covers the sensor's internal processing time; the
	// datasheet minimum is 120ms.
	DefaultProcessingDelay = 150 * time.Millisecond
	MinProcessingDelay     = 120 * time.Millisecond
	DefaultWriteTimeout    = 20 * time.Millisecond
	DefaultReadTimeout     = 50 * time.Millisecond
)

var (
	// ErrTransport is matched by every error caused by the underlying bus.
	ErrTransport = errors.New("sr04: transport error")
	ErrWrite     = fmt.Errorf("%w: measurement command write failed", ErrTransport)
	ErrRead      = fmt.Errorf("%w: distance read failed", ErrTransport)
)

type SR04Opts struct {
	Address         byte
	ProcessingDelay time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
}

type SR04Opt func(*SR04Opts)

func WithAddress(address byte) SR04Opt {
	return func(o *SR04Opts) {
		o.Address = address
	}
}

// WithProcessingDelay sets the wait between the start command and the read in
// MeasureDistance and WaitReady. Values below MinProcessingDelay are accepted but the
// sensor is unlikely to have a result ready.
func WithProcessingDelay(delay time.Duration) SR04Opt {
	return func(o *SR04Opts) {
		o.ProcessingDelay = delay
	}
}

func WithWriteTimeout(timeout time.Duration) SR04Opt {
	return func(o *SR04Opts) {
		o.WriteTimeout = timeout
	}
}

func WithReadTimeout(timeout time.Duration) SR04Opt {
	return func(o *SR04Opts) {
		o.ReadTimeout = timeout
	}
}

// SR04 represents the HC-SR04d ultrasonic distance meter in I2C mode (RCWL-9610 chip,
// I2C selected by shorting the mode pads).
// Typical usage:
//
//	s := NewSR04(bus)
//	mm, err := s.MeasureDistance(ctx)
//
// or, when the caller does not want to block for the processing time:
//
//	err := s.StartMeasure(ctx)
//	// ... other work ...
//	err = s.WaitReady(ctx)
//	mm, err := s.ReadDistance(ctx)
//
// Distances are returned in millimetres.
type SR04 struct {
	mx     sync.Mutex
	config SR04Opts
	dev    *rangefinder.Device

	readyMx sync.Mutex
	readyAt time.Time // zero when no measurement is pending

	buf []byte
}

func NewSR04(bus rangefinder.I2CBus, opts ...SR04Opt) *SR04 {
	config := SR04Opts{
		Address:         SR04DefaultAddress,
		ProcessingDelay: DefaultProcessingDelay,
		WriteTimeout:    DefaultWriteTimeout,
		ReadTimeout:     DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &SR04{
		config: config,
		dev:    &rangefinder.Device{Bus: bus, Addr: config.Address},
		buf:    make([]byte, payloadSize),
	}
}

func (s *SR04) Address() byte {
	return s.config.Address
}

func (s *SR04) ProcessingDelay() time.Duration {
	return s.config.ProcessingDelay
}

// MeasureDistance sends the start command, waits for the processing delay and reads
// the result. The bus lock is held for the whole exchange.
func (s *SR04) MeasureDistance(ctx context.Context) (float64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.start(ctx); err != nil {
		return 0, err
	}
	if err := s.waitReady(ctx); err != nil {
		return 0, err
	}
	return s.read(ctx)
}

// StartMeasure only sends the start command. The caller must let at least the
// processing delay pass (see WaitReady) before calling ReadDistance.
func (s *SR04) StartMeasure(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.start(ctx)
}

// ReadDistance reads and decodes the last measurement. It does not check whether a
// measurement was started.
func (s *SR04) ReadDistance(ctx context.Context) (float64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.read(ctx)
}

// Ready reports whether the processing delay since the last StartMeasure has passed.
// It is true when no measurement is pending.
func (s *SR04) Ready() bool {
	s.readyMx.Lock()
	defer s.readyMx.Unlock()
	return s.readyAt.IsZero() || !time.Now().Before(s.readyAt)
}

// WaitReady blocks until the measurement started by the last StartMeasure should be
// available, or ctx is done.
func (s *SR04) WaitReady(ctx context.Context) error {
	return s.waitReady(ctx)
}

func (s *SR04) start(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
	defer cancel()
	err := s.dev.Write(wctx, []byte{cmdMeasureStart})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	s.readyMx.Lock()
	s.readyAt = time.Now().Add(s.config.ProcessingDelay)
	s.readyMx.Unlock()
	slog.Debug("sr04 measurement started", "addr", fmt.Sprintf("%#x", s.config.Address))
	return nil
}

func (s *SR04) waitReady(ctx context.Context) error {
	s.readyMx.Lock()
	readyAt := s.readyAt
	s.readyMx.Unlock()
	if readyAt.IsZero() {
		return nil
	}
	wait := time.Until(readyAt)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SR04) read(ctx context.Context) (float64, error) {
	rctx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()
	clear(s.buf)
	err := s.dev.Read(rctx, s.buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRead, err)
	}
	// the result has been fetched, nothing is pending any more
	s.readyMx.Lock()
	s.readyAt = time.Time{}
	s.readyMx.Unlock()
	mm, err := Decode(s.buf)
	if err != nil {
		return 0, err
	}
	slog.Debug("sr04 distance read", "raw", s.buf, "mm", mm)
	return mm, nil
}
