package ranging

import (
	"context"
	"sync"

	"github.com/mklimuk/rangefinder"
)

// Failure is returned by the float returning helpers below when the measurement could
// not be taken, whatever the cause.
const Failure = -1.0

type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "ERROR"
}

// The helpers below drive a sensor at the default address with default timings and
// collapse every error into Failure or StatusError. Use SR04 directly to tell transport
// and decoding errors apart.
//
// Calls sharing a bus are serialized, so a start from one caller never lands between
// the start and the read of another.

// busLocks holds one *sync.Mutex per bus. Buses must be comparable, which every
// pointer implementation is.
var busLocks sync.Map

func lockBus(bus rangefinder.I2CBus) func() {
	v, _ := busLocks.LoadOrStore(bus, &sync.Mutex{})
	mx := v.(*sync.Mutex)
	mx.Lock()
	return mx.Unlock
}

// MeasureDistanceMM starts a measurement, blocks for the processing delay and returns the
// distance in millimetres, or Failure.
func MeasureDistanceMM(ctx context.Context, bus rangefinder.I2CBus) float64 {
	defer lockBus(bus)()
	mm, err := NewSR04(bus).MeasureDistance(ctx)
	if err != nil {
		return Failure
	}
	return mm
}

// StartMeasureDistance sends the start command. Wait at least MinProcessingDelay before
// calling GetDistanceMM.
func StartMeasureDistance(ctx context.Context, bus rangefinder.I2CBus) Status {
	defer lockBus(bus)()
	if err := NewSR04(bus).StartMeasure(ctx); err != nil {
		return StatusError
	}
	return StatusOK
}

// GetDistanceMM reads the distance of a previously started measurement, or Failure.
func GetDistanceMM(ctx context.Context, bus rangefinder.I2CBus) float64 {
	defer lockBus(bus)()
	mm, err := NewSR04(bus).ReadDistance(ctx)
	if err != nil {
		return Failure
	}
	return mm
}
