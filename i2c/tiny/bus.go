// Package tiny adapts TinyGo I2C peripherals (machine.I2C or any tinygo.org/x/drivers
// I2C implementation) to rangefinder.I2CBus so the drivers can run on a microcontroller.
package tiny

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/rangefinder"
)

var _ rangefinder.I2CBus = &Bus{}

// Bus is an I2CBus backed by an already configured TinyGo I2C peripheral. Timeouts are
// those of the peripheral; ctx is only checked before each transaction.
type Bus struct {
	mx  sync.Mutex
	i2c drivers.I2C
}

func New(i2c drivers.I2C) *Bus {
	return &Bus{i2c: i2c}
}

func (b *Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.i2c.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.i2c.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *Bus) Release(ctx context.Context) error {
	return nil
}
