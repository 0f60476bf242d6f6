package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	return runner("test", "Run unit tests", test.Test)
}

func LintCmd() *cobra.Command {
	return runner("lint", "Run golangci-lint", test.Lint)
}

func runner(use, short string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}

// IntegrationTestCmd runs the test suite with the hardware tests enabled. Each transport
// test skips itself unless the sensor is reachable through it.
func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Measure with a real sensor through the selected transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := cmd.Flags().GetString("device")
			if err != nil {
				return fmt.Errorf("could not get device flag: %w", err)
			}
			mcp2221, err := cmd.Flags().GetBool("mcp2221")
			if err != nil {
				return fmt.Errorf("could not get mcp2221 flag: %w", err)
			}
			env := integrationEnv(device, mcp2221)
			if len(env) == 0 {
				slog.Warn("no transport selected, hardware tests will be skipped (use --device or --mcp2221)")
			}
			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				slog.Info("integration target", k, env[k])
				if err := os.Setenv(k, env[k]); err != nil {
					return fmt.Errorf("could not set %s: %w", k, err)
				}
			}
			if err := test.Integ(); err != nil {
				return fmt.Errorf("integration tests failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("device", "", "host i2c device the sensor is wired to (e.g. /dev/i2c-1)")
	cmd.Flags().Bool("mcp2221", false, "measure through an attached MCP2221 USB bridge")
	return cmd
}

// integrationEnv maps the selected transports to the variables the hardware tests read.
func integrationEnv(device string, mcp2221 bool) map[string]string {
	env := map[string]string{}
	if device != "" {
		env["SR04_I2C_DEVICE"] = device
	}
	if mcp2221 {
		env["SR04_MCP2221"] = "1"
	}
	return env
}
