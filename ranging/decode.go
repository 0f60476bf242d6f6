package ranging

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

var ErrPayloadSize = errors.New("sr04: invalid payload size")

// Raw returns the 24-bit big-endian value carried by a 3 byte sensor payload. The unit
// is micrometres.
func Raw(buf []byte) (uint32, error) {
	if len(buf) != payloadSize {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrPayloadSize, payloadSize, len(buf))
	}
	return (uint32(buf[0]) << 16) | (uint32(buf[1]) << 8) | uint32(buf[2]), nil
}

// Decode converts a sensor payload to millimetres: (b0<<16 | b1<<8 | b2) / 1000.
// No range or plausibility check is made.
func Decode(buf []byte) (float64, error) {
	raw, err := Raw(buf)
	if err != nil {
		return 0, err
	}
	return float64(raw) / 1000.0, nil
}

// Distance converts a sensor payload to a physic.Distance.
func Distance(buf []byte) (physic.Distance, error) {
	raw, err := Raw(buf)
	if err != nil {
		return 0, err
	}
	return physic.Distance(raw) * physic.MicroMetre, nil
}

// Millimetres converts a physic.Distance back to the float representation used by the
// driver.
func Millimetres(d physic.Distance) float64 {
	return float64(d) / float64(physic.MilliMetre)
}

// IsTransient reports whether err was caused by the bus rather than by the payload, so
// the measurement may be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport)
}
