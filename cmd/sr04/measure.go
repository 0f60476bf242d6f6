package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/sr04/console"
	"github.com/mklimuk/rangefinder/ranging"
)

var measureCmd = cli.Command{
	Name:    "measure",
	Aliases: []string{"m"},
	Usage:   "start a measurement, wait for the result and print it",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "split",
			Usage: "run start, wait and read as separate steps",
		},
		&cli.BoolFlag{
			Name:  "sentinel",
			Usage: "print -1 instead of failing when the measurement fails",
		},
	}, busFlags()...),
	Action: func(c *cli.Context) error {
		ctx, s, _, release, err := sensor(c)
		if err != nil {
			return console.ExitErr("could not open sensor", err)
		}
		defer release()

		var mm float64
		if c.Bool("split") {
			mm, err = splitMeasure(ctx, s)
		} else {
			mm, err = s.MeasureDistance(ctx)
		}
		if err != nil {
			if c.Bool("sentinel") {
				console.Warnf("measurement failed: %s", err)
				console.Distance(ranging.Failure)
				return nil
			}
			return console.ExitErr("measurement failed", err)
		}
		console.Distance(mm)
		return nil
	},
}

func splitMeasure(ctx context.Context, s *ranging.SR04) (float64, error) {
	if err := s.StartMeasure(ctx); err != nil {
		return 0, err
	}
	start := time.Now()
	if err := s.WaitReady(ctx); err != nil {
		return 0, err
	}
	console.Infof("waited %s", time.Since(start).Round(time.Millisecond))
	return s.ReadDistance(ctx)
}

var startCmd = cli.Command{
	Name:  "start",
	Usage: "send the start command only",
	Flags: busFlags(),
	Action: func(c *cli.Context) error {
		ctx, s, _, release, err := sensor(c)
		if err != nil {
			return console.ExitErr("could not open sensor", err)
		}
		defer release()
		if err := s.StartMeasure(ctx); err != nil {
			return console.ExitErr("could not start measurement", err)
		}
		console.Printf("%s\n", console.Green(ranging.StatusOK))
		console.Infof("read the result in no less than %s", ranging.MinProcessingDelay)
		return nil
	},
}

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "read the result of a previously started measurement",
	Flags:   busFlags(),
	Action: func(c *cli.Context) error {
		ctx, s, _, release, err := sensor(c)
		if err != nil {
			return console.ExitErr("could not open sensor", err)
		}
		defer release()
		mm, err := s.ReadDistance(ctx)
		if err != nil {
			return console.ExitErr("could not read distance", err)
		}
		console.Distance(mm)
		return nil
	},
}
