package ranging

import (
	"context"
)

// DistanceSensor is implemented by SR04 and by MockDistanceSensor.
type DistanceSensor interface {
	MeasureDistance(ctx context.Context) (float64, error)
}

var _ DistanceSensor = &SR04{}
var _ DistanceSensor = &MockDistanceSensor{}

// DistanceBehaviorFunc defines the function signature for distance sensor behavior.
// It returns the distance in millimetres or an error.
type DistanceBehaviorFunc func(ctx context.Context) (float64, error)

// MockDistanceSensor is a mock implementation of a distance sensor that uses a behavior
// function to produce results without requiring any hardware.
type MockDistanceSensor struct {
	behavior DistanceBehaviorFunc
}

// NewMockDistanceSensor creates a new mock distance sensor with the given behavior function.
//
// Example usage:
//
//	sensor := NewMockDistanceSensor(func(ctx context.Context) (float64, error) { return 250.0, nil })
func NewMockDistanceSensor(behavior DistanceBehaviorFunc) *MockDistanceSensor {
	return &MockDistanceSensor{behavior: behavior}
}

// MeasureDistance returns the distance by calling the behavior function.
func (m *MockDistanceSensor) MeasureDistance(ctx context.Context) (float64, error) {
	return m.behavior(ctx)
}

// NewMockSR04 is an alias for NewMockDistanceSensor.
func NewMockSR04(behavior DistanceBehaviorFunc) *MockDistanceSensor {
	return NewMockDistanceSensor(behavior)
}
