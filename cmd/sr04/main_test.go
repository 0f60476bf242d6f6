package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/sr04/console"
	"github.com/mklimuk/rangefinder/pkg/config"
	"github.com/mklimuk/rangefinder/ranging"
)

type fakeBus struct {
	writes  [][]byte
	payload []byte
}

func (b *fakeBus) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	b.writes = append(b.writes, append([]byte(nil), buffer...))
	return nil
}

func (b *fakeBus) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	copy(buffer, b.payload)
	return nil
}

func (b *fakeBus) Release(context.Context) error { return nil }

func TestParseAddress(t *testing.T) {
	tests := []struct {
		given    string
		expected byte
		err      bool
	}{
		{given: "57", expected: 0x57},
		{given: "7f", expected: 0x7F},
		{given: "0x57", err: true},
		{given: "5", err: true},
		{given: "5758", err: true},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			addr, err := parseAddress(test.given)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, addr)
		})
	}
}

func settingsFor(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var conf config.Config
	var err error
	app := &cli.App{
		Flags: []cli.Flag{&cli.StringFlag{Name: "config"}},
		Commands: []*cli.Command{{
			Name:  "test",
			Flags: busFlags(),
			Action: func(c *cli.Context) error {
				conf, err = settings(c)
				return nil
			},
		}},
	}
	require.NoError(t, app.Run(append([]string{"sr04", "test"}, args...)))
	return conf, err
}

func TestSettings_BridgeTimeouts(t *testing.T) {
	conf, err := settingsFor(t)
	require.NoError(t, err)
	assert.Equal(t, "mcp2221", conf.Adapter)
	assert.Equal(t, usbBridgeTimeout, conf.WriteTimeout)
	assert.Equal(t, usbBridgeTimeout, conf.ReadTimeout)
}

func TestSettings_Flags(t *testing.T) {
	conf, err := settingsFor(t, "--adapter", "generic", "--addr", "58", "--delay", "200ms")
	require.NoError(t, err)
	assert.Equal(t, "generic", conf.Adapter)
	assert.Equal(t, byte(0x58), conf.Address)
	assert.Equal(t, 200*time.Millisecond, conf.ProcessingDelay)
	assert.Equal(t, ranging.DefaultWriteTimeout, conf.WriteTimeout)
	assert.Equal(t, ranging.DefaultReadTimeout, conf.ReadTimeout)
}

func TestSettings_Invalid(t *testing.T) {
	_, err := settingsFor(t, "--adapter", "serial")
	assert.Error(t, err)
	_, err = settingsFor(t, "--addr", "zz")
	assert.Error(t, err)
}

func TestShellExec(t *testing.T) {
	var out bytes.Buffer
	console.SetOutput(&out, &out)
	console.NoColor(true)
	defer console.SetOutput(&bytes.Buffer{}, &bytes.Buffer{})

	bus := &fakeBus{payload: []byte{0x00, 0x01, 0x2C}}
	s := ranging.NewSR04(bus, ranging.WithProcessingDelay(time.Millisecond))
	ctx := context.Background()

	require.NoError(t, shellExec(ctx, s, "s"))
	require.NoError(t, shellExec(ctx, s, "w"))
	require.NoError(t, shellExec(ctx, s, "r"))
	assert.Contains(t, out.String(), "0.300 mm")

	out.Reset()
	require.NoError(t, shellExec(ctx, s, " measure "))
	assert.Contains(t, out.String(), "0.300 mm")
	assert.Len(t, bus.writes, 2)

	assert.NoError(t, shellExec(ctx, s, ""))
	assert.ErrorIs(t, shellExec(ctx, s, "q"), errQuit)
	assert.Error(t, shellExec(ctx, s, "jump"))
}
