package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/adapter"
	"github.com/mklimuk/rangefinder/cmd/sr04/console"
	"github.com/mklimuk/rangefinder/i2c"
	"github.com/mklimuk/rangefinder/pkg/config"
	"github.com/mklimuk/rangefinder/ranging"
	"github.com/mklimuk/rangefinder/snsctx"
)

// The USB bridge needs two HID round trips per read, far above the sensor's own timeouts.
const usbBridgeTimeout = 500 * time.Millisecond

func busFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter: mcp2221, generic or nanopi",
			Value:   "mcp2221",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "i2c device for the generic adapter",
			Value:   "/dev/i2c-1",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "i2c bus number for the nanopi adapter (-1 for the board default)",
			Value: -1,
		},
		&cli.StringFlag{
			Name:  "addr",
			Usage: "sensor address (hex)",
			Value: "57",
		},
		&cli.DurationFlag{
			Name:  "delay",
			Usage: "processing delay between start and read",
			Value: ranging.DefaultProcessingDelay,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per transaction timeout (defaults to 20ms/50ms, 500ms with mcp2221)",
		},
		&cli.IntFlag{
			Name:  "speed",
			Usage: "bus clock in kHz for the generic adapter (0 keeps the current one)",
		},
	}
}

// settings merges the config file with the flags explicitly set on the command line.
func settings(c *cli.Context) (config.Config, error) {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return conf, err
	}
	if c.IsSet("adapter") {
		conf.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		conf.Device = c.String("device")
	}
	if c.IsSet("addr") {
		addr, err := parseAddress(c.String("addr"))
		if err != nil {
			return conf, err
		}
		conf.Address = addr
	}
	if c.IsSet("delay") {
		conf.ProcessingDelay = c.Duration("delay")
	}
	if c.IsSet("timeout") {
		conf.WriteTimeout = c.Duration("timeout")
		conf.ReadTimeout = c.Duration("timeout")
	} else if conf.Adapter == "mcp2221" {
		if conf.WriteTimeout == ranging.DefaultWriteTimeout {
			conf.WriteTimeout = usbBridgeTimeout
		}
		if conf.ReadTimeout == ranging.DefaultReadTimeout {
			conf.ReadTimeout = usbBridgeTimeout
		}
	}
	if c.IsSet("interval") {
		conf.Interval = c.Duration("interval")
	}
	if c.IsSet("metrics") {
		conf.Metrics = c.String("metrics")
	}
	return conf, conf.Validate()
}

func parseAddress(s string) (byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("invalid address %q: expected a single hex byte", s)
	}
	return b[0], nil
}

// openBus opens the adapter selected in conf. The returned func releases it.
func openBus(ctx context.Context, c *cli.Context, conf config.Config) (rangefinder.I2CBus, func(), error) {
	switch conf.Adapter {
	case "mcp2221":
		a := adapter.NewMCP2221()
		if err := a.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return a, func() {}, nil
	case "generic":
		bus, err := i2c.NewGenericBus(conf.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if speed := c.Int("speed"); speed > 0 {
			if err := bus.SetSpeed(physic.Frequency(speed) * physic.KiloHertz); err != nil {
				_ = bus.Close()
				return nil, nil, fmt.Errorf("could not set bus speed: %w", err)
			}
		}
		return bus, closer(bus.Close), nil
	case "nanopi":
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, c.Int("bus"))
		return bus, func() {
			closer(bus.Close)()
			closer(npi.I2cBusAdaptor.Finalize)()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", conf.Adapter)
}

func closer(fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			console.Errorf("error closing bus: %s", console.Red(err))
		}
	}
}

// sensor resolves settings, opens the bus and builds the driver.
func sensor(c *cli.Context) (context.Context, *ranging.SR04, config.Config, func(), error) {
	ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
	conf, err := settings(c)
	if err != nil {
		return ctx, nil, conf, nil, err
	}
	bus, release, err := openBus(ctx, c, conf)
	if err != nil {
		return ctx, nil, conf, nil, err
	}
	return ctx, ranging.NewSR04(bus, conf.SensorOpts()...), conf, release, nil
}
