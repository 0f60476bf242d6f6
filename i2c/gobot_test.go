package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/rangefinder/ranging"
)

type fakeConnection struct {
	i2c.Connection
	written  [][]byte
	response []byte
	readErr  error
	closed   bool
}

func (c *fakeConnection) Read(b []byte) (int, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	return copy(b, c.response), nil
}

func (c *fakeConnection) Write(b []byte) (int, error) {
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeConnector struct {
	conns  map[int]*fakeConnection
	opened []int
	busNr  int
}

func (f *fakeConnector) GetI2cConnection(address int, busNr int) (i2c.Connection, error) {
	f.opened = append(f.opened, address)
	f.busNr = busNr
	c, ok := f.conns[address]
	if !ok {
		return nil, errors.New("no device")
	}
	return c, nil
}

func (f *fakeConnector) DefaultI2cBus() int {
	return 2
}

func TestGobotBus_Measure(t *testing.T) {
	conn := &fakeConnection{response: []byte{0x01, 0x00, 0x00}}
	connector := &fakeConnector{conns: map[int]*fakeConnection{0x57: conn}}
	bus := NewGobotBus(connector, -1)
	sensor := ranging.NewSR04(bus, ranging.WithProcessingDelay(0))

	mm, err := sensor.MeasureDistance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 65.536, mm, 1e-9)
	assert.Equal(t, [][]byte{{0x01}}, conn.written)
	assert.Equal(t, 2, connector.busNr)
	// connection is reused between write and read
	assert.Equal(t, []int{0x57}, connector.opened)

	require.NoError(t, bus.Close())
	assert.True(t, conn.closed)
}

func TestGobotBus_ShortRead(t *testing.T) {
	conn := &fakeConnection{response: []byte{0x01}}
	bus := NewGobotBus(&fakeConnector{conns: map[int]*fakeConnection{0x57: conn}}, 0)

	_, err := ranging.NewSR04(bus).ReadDistance(context.Background())
	assert.ErrorIs(t, err, ranging.ErrRead)
}

func TestGobotBus_NoDevice(t *testing.T) {
	bus := NewGobotBus(&fakeConnector{}, 0)
	err := bus.WriteToAddr(context.Background(), 0x57, []byte{0x01})
	assert.Error(t, err)
}
