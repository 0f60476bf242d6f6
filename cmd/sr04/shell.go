package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/sr04/console"
	"github.com/mklimuk/rangefinder/ranging"
)

const shellHelp = `m, measure   start, wait and read
s, start     send the start command
w, wait      wait for the pending measurement
r, read      read the distance
?, help      this help
q, quit      exit`

var errQuit = errors.New("quit")

var shellCmd = cli.Command{
	Name:  "shell",
	Usage: "interactive session keeping the bus open",
	Flags: busFlags(),
	Action: func(c *cli.Context) error {
		ctx, s, _, release, err := sensor(c)
		if err != nil {
			return console.ExitErr("could not open sensor", err)
		}
		defer release()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          fmt.Sprintf("sr04 %#x> ", s.Address()),
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
		})
		if err != nil {
			return console.ExitErr("could not start shell", err)
		}
		defer func() { _ = rl.Close() }()

		console.Printf("%s\n", shellHelp)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return console.ExitErr("could not read input", err)
			}
			err = shellExec(ctx, s, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				console.Errorf("%s", console.Red(err))
			}
		}
	},
}

func shellExec(ctx context.Context, s *ranging.SR04, line string) error {
	switch strings.TrimSpace(line) {
	case "":
		return nil
	case "m", "measure":
		mm, err := s.MeasureDistance(ctx)
		if err != nil {
			return err
		}
		console.Distance(mm)
	case "s", "start":
		if err := s.StartMeasure(ctx); err != nil {
			return err
		}
		console.Printf("%s\n", console.Green(ranging.StatusOK))
	case "w", "wait":
		if s.Ready() {
			console.Infof("nothing pending")
			return nil
		}
		return s.WaitReady(ctx)
	case "r", "read":
		mm, err := s.ReadDistance(ctx)
		if err != nil {
			return err
		}
		console.Distance(mm)
	case "?", "help":
		console.Printf("%s\n", shellHelp)
	case "q", "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type ? for help", line)
	}
	return nil
}
