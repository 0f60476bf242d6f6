package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/sr04/console"
	"github.com/mklimuk/rangefinder/monitor"
)

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "measure periodically until interrupted",
	Flags: append([]cli.Flag{
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "time between measurements",
			Value:   time.Second,
		},
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "serve prometheus metrics on this address (e.g. :9100)",
		},
	}, busFlags()...),
	Action: func(c *cli.Context) error {
		ctx, s, conf, release, err := sensor(c)
		if err != nil {
			return console.ExitErr("could not open sensor", err)
		}
		defer release()
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		m, err := monitor.New(s, monitor.WithInterval(conf.Interval), monitor.WithRegisterer(reg))
		if err != nil {
			return console.ExitErr("could not create monitor", err)
		}
		if conf.Metrics != "" {
			srv := &http.Server{
				Addr:              conf.Metrics,
				Handler:           metricsHandler(reg),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				slog.Info("serving metrics", "addr", conf.Metrics)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for r := range m.Readings() {
				console.PInfof(console.PictoPin, "%s %s mm", r.Time.Format(time.TimeOnly), console.White(r.Millimetres))
			}
		}()
		err = m.Run(ctx)
		<-printed
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.ExitErr("monitor stopped", err)
		}
		return nil
	},
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
