package rangefinder

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a master bus shared by the devices attached to it. Addresses are 7-bit,
// implementations append the direction bit on the wire.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

type I2CDevice interface {
	BusReader
	BusWriter
}

// Device binds an I2CBus to a single address so it can be used as an I2CDevice.
type Device struct {
	Bus  I2CBus
	Addr byte
}

var _ I2CDevice = &Device{}

func (d *Device) Read(ctx context.Context, buffer []byte) error {
	return d.Bus.ReadFromAddr(ctx, d.Addr, buffer)
}

func (d *Device) Write(ctx context.Context, buffer []byte) error {
	return d.Bus.WriteToAddr(ctx, d.Addr, buffer)
}

// WriteAddress returns the 8-bit direction byte used to address a write to a 7-bit address.
func WriteAddress(address byte) byte {
	return address << 1
}

// ReadAddress returns the 8-bit direction byte used to address a read from a 7-bit address.
func ReadAddress(address byte) byte {
	return address<<1 | 0x01
}
