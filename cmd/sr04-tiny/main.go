//go:build tinygo

// Command sr04-tiny measures distance on a microcontroller and prints it on the serial console.
package main

import (
	"context"
	"machine"
	"time"

	"github.com/mklimuk/rangefinder/i2c/tiny"
	"github.com/mklimuk/rangefinder/ranging"
)

func main() {
	if err := machine.I2C0.Configure(machine.I2CConfig{Frequency: 100 * machine.KHz}); err != nil {
		println("i2c configuration error:", err.Error())
		return
	}
	sensor := ranging.NewSR04(tiny.New(machine.I2C0))
	ctx := context.Background()
	for {
		mm, err := sensor.MeasureDistance(ctx)
		if err != nil {
			println("measurement failed:", err.Error())
		} else {
			println(int32(mm*1000), "um")
		}
		time.Sleep(time.Second)
	}
}
