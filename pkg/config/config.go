// Package config holds build metadata injected at link time and the optional YAML file
// the sr04 cli reads its defaults from.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/ranging"
)

// Set with -ldflags by the dev tool.
var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

func BuildInfo() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}

type Config struct {
	Adapter string `yaml:"adapter"`
	Device  string `yaml:"device"`
	// Address is the sensor's 7-bit address.
	Address         byte          `yaml:"address"`
	ProcessingDelay time.Duration `yaml:"processing_delay"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	Interval        time.Duration `yaml:"interval"`
	Metrics         string        `yaml:"metrics"`
}

func Default() Config {
	return Config{
		Adapter:         "mcp2221",
		Device:          "/dev/i2c-1",
		Address:         ranging.SR04DefaultAddress,
		ProcessingDelay: ranging.DefaultProcessingDelay,
		WriteTimeout:    ranging.DefaultWriteTimeout,
		ReadTimeout:     ranging.DefaultReadTimeout,
		Interval:        time.Second,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	conf := Default()
	if path == "" {
		return conf, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return conf, nil
	}
	if err != nil {
		return conf, fmt.Errorf("could not open config file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f, conf)
}

// Decode reads YAML from r over base.
func Decode(r io.Reader, base Config) (Config, error) {
	err := yaml.NewDecoder(r).Decode(&base)
	if err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("could not decode config: %w", err)
	}
	return base, base.Validate()
}

func (c Config) Validate() error {
	if c.Address > 0x7F {
		return fmt.Errorf("invalid address %#x: not a 7-bit address", c.Address)
	}
	switch c.Adapter {
	case "mcp2221", "generic", "nanopi":
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	if c.ProcessingDelay < 0 || c.WriteTimeout <= 0 || c.ReadTimeout <= 0 {
		return errors.New("delays and timeouts must be positive")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	return nil
}

// SensorOpts converts the configuration to driver options.
func (c Config) SensorOpts() []ranging.SR04Opt {
	return []ranging.SR04Opt{
		ranging.WithAddress(c.Address),
		ranging.WithProcessingDelay(c.ProcessingDelay),
		ranging.WithWriteTimeout(c.WriteTimeout),
		ranging.WithReadTimeout(c.ReadTimeout),
	}
}
