// Command server runs the room relay: a WebSocket endpoint at
// /chat/{room_id}/{client_id} that fans each message out to the other
// members of the room, plus the browser chat page, health, rooms, and
// metrics endpoints.
//
// Configuration is read from flags, then environment variables, then a .env
// file in the working directory, then built-in defaults.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/relay"
	"github.com/Tyrowin/roomrelay/internal/server"
)

const version = "1.0.0"

func main() {
	// Load .env if present; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: error loading .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(server.NewConfigFromEnv()).Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand(base server.Config) *cli.Command {
	return &cli.Command{
		Name:    "roomrelay",
		Usage:   "relay chat messages between clients joined to the same room",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: base.Addr, Usage: "HTTP listen address"},
			&cli.StringSliceFlag{Name: "allowed-origin", Value: base.AllowedOrigins, Usage: "origin allowed to open a chat connection (repeatable, * for any)"},
			&cli.IntFlag{Name: "max-message-size", Value: base.MaxMessageSize, Usage: "largest inbound message in bytes"},
			&cli.IntFlag{Name: "send-buffer", Value: int64(base.SendBuffer), Usage: "outbound messages queued per connection"},
			&cli.IntFlag{Name: "rate-burst", Value: int64(base.RateLimit.Burst), Usage: "messages a client may send per refill interval, 0 disables rate limiting"},
			&cli.DurationFlag{Name: "rate-interval", Value: base.RateLimit.RefillInterval, Usage: "rate limit refill interval"},
			&cli.StringFlag{Name: "duplicates", Value: base.DuplicatePolicy.String(), Usage: "what to do with a connection replaced by a duplicate join: keep or close"},
			&cli.BoolFlag{Name: "reject-empty-ids", Value: base.RejectEmptyIDs, Usage: "refuse connections with an empty room or client identifier"},
			&cli.StringFlag{Name: "log-format", Value: base.LogFormat, Usage: "text or json"},
			&cli.StringFlag{Name: "log-level", Value: base.LogLevel, Usage: "debug, info, warn or error"},
			&cli.DurationFlag{Name: "shutdown-timeout", Value: base.ShutdownTimeout, Usage: "time allowed for graceful shutdown"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCommand(base, cmd)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
}

func configFromCommand(base server.Config, cmd *cli.Command) (server.Config, error) {
	cfg := base
	cfg.Addr = cmd.String("addr")
	cfg.AllowedOrigins = cmd.StringSlice("allowed-origin")
	cfg.MaxMessageSize = cmd.Int("max-message-size")
	cfg.SendBuffer = int(cmd.Int("send-buffer"))
	cfg.RateLimit.Burst = int(cmd.Int("rate-burst"))
	cfg.RateLimit.RefillInterval = cmd.Duration("rate-interval")
	cfg.RejectEmptyIDs = cmd.Bool("reject-empty-ids")
	cfg.LogFormat = cmd.String("log-format")
	cfg.LogLevel = cmd.String("log-level")
	cfg.ShutdownTimeout = cmd.Duration("shutdown-timeout")

	policy, err := relay.ParseDuplicatePolicy(cmd.String("duplicates"))
	if err != nil {
		return cfg, fmt.Errorf("--duplicates: %w", err)
	}
	cfg.DuplicatePolicy = policy

	return cfg.Sanitize(), nil
}

func run(ctx context.Context, cfg server.Config) error {
	logger := server.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	logger.Info("relay.starting", "version", version, "addr", cfg.Addr, "duplicates", cfg.DuplicatePolicy)

	m := metrics.New()
	hub := server.NewHub(cfg, logger, m)
	httpServer := server.CreateServer(cfg.Addr, server.SetupRoutes(hub, m.Handler()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = hub.Shutdown(cfg.ShutdownTimeout)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	return shutdownErr
}
