package ranging

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// MockI2CBus is a mock implementation of rangefinder.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
	concurrentOps int64
	maxConcurrent int64
	mu            sync.Mutex
}

func (m *MockI2CBus) enter() {
	m.mu.Lock()
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
	m.mu.Unlock()
}

func (m *MockI2CBus) leave() {
	atomic.AddInt64(&m.concurrentOps, -1)
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	m.enter()
	defer m.leave()
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	m.enter()
	defer m.leave()
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var withDeadline = mock.MatchedBy(func(ctx context.Context) bool {
	_, ok := ctx.Deadline()
	return ok
})

func TestDecode(t *testing.T) {
	tests := []struct {
		given    []byte
		expected float64
	}{
		{[]byte{0x00, 0x00, 0x00}, 0.0},
		{[]byte{0x00, 0x01, 0x2C}, 0.3},
		{[]byte{0x01, 0x00, 0x00}, 65.536},
		{[]byte{0x00, 0x03, 0xE8}, 1.0},
		{[]byte{0x0F, 0x42, 0x40}, 1000.0},
		{[]byte{0xFF, 0xFF, 0xFF}, 16777.215},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			mm, err := Decode(test.given)
			require.NoError(t, err)
			assert.InDelta(t, test.expected, mm, 1e-9)
		})
	}
}

func TestDecode_UsesThirdByte(t *testing.T) {
	// low order bits must come from index 2 only
	mm, err := Decode([]byte{0x00, 0x00, 0x07})
	require.NoError(t, err)
	assert.InDelta(t, 0.007, mm, 1e-12)
}

func TestDecode_PayloadSize(t *testing.T) {
	for _, buf := range [][]byte{nil, {0x01}, {0x01, 0x02}, {0x01, 0x02, 0x03, 0x04}} {
		_, err := Decode(buf)
		assert.ErrorIs(t, err, ErrPayloadSize)
		assert.False(t, IsTransient(err))
	}
}

func TestDistance(t *testing.T) {
	d, err := Distance([]byte{0x01, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 65536*physic.MicroMetre, d)
	assert.InDelta(t, 65.536, Millimetres(d), 1e-9)
}

func TestSR04_MeasureDistance(t *testing.T) {
	bus := new(MockI2CBus)
	delay := 20 * time.Millisecond
	sensor := NewSR04(bus, WithProcessingDelay(delay))
	ctx := context.Background()

	bus.On("WriteToAddr", withDeadline, byte(SR04DefaultAddress), []byte{cmdMeasureStart}).Return(nil).Once()
	bus.On("ReadFromAddr", withDeadline, byte(SR04DefaultAddress), mock.Anything).
		Return([]byte{0x00, 0x01, 0x2C}, nil).Once()

	start := time.Now()
	mm, err := sensor.MeasureDistance(ctx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.InDelta(t, 0.3, mm, 1e-9)
	assert.GreaterOrEqual(t, elapsed, delay, "read must wait for the processing delay")
	assert.True(t, sensor.Ready())
	bus.AssertExpectations(t)
}

func TestSR04_MeasureDistance_WriteFailure(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := NewSR04(bus)
	nack := errors.New("nack")

	bus.On("WriteToAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).Return(nack).Once()

	start := time.Now()
	_, err := sensor.MeasureDistance(context.Background())

	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, nack)
	assert.True(t, IsTransient(err))
	assert.Less(t, time.Since(start), DefaultProcessingDelay, "must not wait after a failed write")
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, sensor.Ready(), "a failed start leaves nothing pending")
}

func TestSR04_MeasureDistance_ReadFailure(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := NewSR04(bus, WithProcessingDelay(time.Millisecond))

	bus.On("WriteToAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).
		Return(nil, errors.New("timeout")).Once()

	_, err := sensor.MeasureDistance(context.Background())
	assert.ErrorIs(t, err, ErrRead)
	assert.True(t, IsTransient(err))
	bus.AssertExpectations(t)
}

func TestSR04_MeasureDistance_Cancelled(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := NewSR04(bus, WithProcessingDelay(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	bus.On("WriteToAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).Return(nil).Once()

	_, err := sensor.MeasureDistance(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTransient(err))
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestSR04_StartMeasure(t *testing.T) {
	tests := []struct {
		name     string
		writeErr error
	}{
		{name: "success"},
		{name: "failure", writeErr: errors.New("bus fault")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			sensor := NewSR04(bus, WithAddress(0x58))
			bus.On("WriteToAddr", withDeadline, byte(0x58), []byte{cmdMeasureStart}).Return(tt.writeErr).Once()

			err := sensor.StartMeasure(context.Background())
			if tt.writeErr != nil {
				assert.ErrorIs(t, err, ErrWrite)
				assert.True(t, sensor.Ready())
			} else {
				assert.NoError(t, err)
				assert.False(t, sensor.Ready())
			}
			bus.AssertExpectations(t)
			bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSR04_SplitMeasurement(t *testing.T) {
	bus := new(MockI2CBus)
	delay := 20 * time.Millisecond
	sensor := NewSR04(bus, WithProcessingDelay(delay))
	ctx := context.Background()

	bus.On("WriteToAddr", mock.Anything, byte(SR04DefaultAddress), []byte{cmdMeasureStart}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).
		Return([]byte{0x01, 0x00, 0x00}, nil).Once()

	require.NoError(t, sensor.StartMeasure(ctx))
	start := time.Now()
	require.NoError(t, sensor.WaitReady(ctx))
	assert.GreaterOrEqual(t, time.Since(start), delay-5*time.Millisecond)
	assert.True(t, sensor.Ready())

	mm, err := sensor.ReadDistance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 65.536, mm, 1e-9)
	bus.AssertExpectations(t)
}

func TestSR04_ReadDistance_WithoutStart(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := NewSR04(bus)

	bus.On("ReadFromAddr", withDeadline, byte(SR04DefaultAddress), mock.Anything).
		Return([]byte{0x00, 0x03, 0xE8}, nil).Once()

	// nothing pending, so no wait
	require.NoError(t, sensor.WaitReady(context.Background()))
	mm, err := sensor.ReadDistance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mm, 1e-9)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestSR04_ReadDistance_Failure(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := NewSR04(bus)

	bus.On("ReadFromAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).
		Return(nil, errors.New("nack")).Once()

	_, err := sensor.ReadDistance(context.Background())
	assert.ErrorIs(t, err, ErrRead)
}

func TestSR04_MutexProtection(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := NewSR04(bus, WithProcessingDelay(2*time.Millisecond))
	ctx := context.Background()

	const numOps = 5
	bus.On("WriteToAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).Return(nil).Times(numOps)
	bus.On("ReadFromAddr", mock.Anything, byte(SR04DefaultAddress), mock.Anything).
		Return([]byte{0x00, 0x01, 0x2C}, nil).Times(numOps)

	var wg sync.WaitGroup
	wg.Add(numOps)
	for i := 0; i < numOps; i++ {
		go func() {
			defer wg.Done()
			_, err := sensor.MeasureDistance(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&bus.maxConcurrent), int64(1), "Mutex should serialize operations")
	bus.AssertExpectations(t)
}
