package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogfeed/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the blog feed over HTTP",
		Description: `Starts the blogfeed HTTP server.

Serves the normalized post list on /feed (and /api/hashnode), a health
check on /healthz and Prometheus metrics on /metrics. Posts are fetched
from upstream on the first request and then cached for the configured TTL.`,
		Flags: append(feedFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"BLOGFEED_PORT", "PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origin",
				Usage:   "Comma separated origins allowed to call the API, * for any",
				EnvVars: []string{"BLOGFEED_CORS_ORIGIN"},
			},
			&cli.StringFlag{
				Name:    "warm-interval",
				Usage:   "Refresh the cache in the background at this interval, e.g. 5m",
				EnvVars: []string{"BLOGFEED_WARM_INTERVAL"},
			},
			&cli.DurationFlag{
				Name:    "shutdown-timeout",
				Value:   30 * time.Second,
				Usage:   "How long in-flight requests get to finish on shutdown",
				EnvVars: []string{"BLOGFEED_SHUTDOWN_TIMEOUT"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg, os.Stdout); err != nil {
				return err
			}

			svc := newService(cfg)
			app := server.Server(&server.ServerConfig{
				Service:      svc,
				AllowOrigins: cfg.Server.AllowOrigins,
			})

			signalCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if interval := cfg.WarmEvery(); interval > 0 {
				go svc.Warm(signalCtx, interval)
			}

			listenErr := make(chan error, 1)
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Server.Port)
				log.WithFields(log.Fields{
					"addr":   addr,
					"source": svc.Source().Name(),
					"ttl":    svc.CacheTTL(),
				}).Info("Starting server")
				listenErr <- app.Listen(addr)
			}()

			select {
			case err := <-listenErr:
				return err
			case <-signalCtx.Done():
			}

			log.Info("Gracefully shutting down...")
			if err := app.ShutdownWithTimeout(ctx.Duration("shutdown-timeout")); err != nil {
				return err
			}
			if err := <-listenErr; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Done!")
			return nil
		},
	}
}
