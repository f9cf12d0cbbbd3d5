package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"

	"github.com/okian/versus/internal/adapters/http/api"
	"github.com/okian/versus/internal/adapters/http/swagger"
	service "github.com/okian/versus/internal/app"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/pkg/auth"
	"github.com/okian/versus/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		_, _ = os.Stderr.WriteString("versus: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:           "versus",
		Usage:          "pairwise-comparison ranking service",
		Writer:         stdout,
		ErrWriter:      stderr,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{config.EnvFile},
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadFile(c.String("config"))
			if err != nil {
				return err
			}
			if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(c.App.ErrWriter)); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				logger.Get().Warn(c.Context, "invalid log_level; falling back to info",
					logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			c.App.Metadata = map[string]interface{}{configKey: cfg}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			exportCommand(),
			simulateCommand(),
		},
	}
}

func configOf(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API until interrupted",
		Action: func(c *cli.Context) error {
			return serve(c.Context, configOf(c), nil)
		},
	}
}

// serve runs the API on cfg.Addr. When ready is non-nil it receives the
// bound address once the listener is up.
func serve(ctx context.Context, cfg *config.Config, ready chan<- net.Addr) error {
	log := logger.Get()

	rm := rating.New()
	st, err := service.OpenStore(ctx, cfg, rm)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	opts, err := service.ConfigOptions(cfg)
	if err != nil {
		_ = st.Close()
		return err
	}
	svc := service.New(append(opts,
		service.WithStore(st),
		service.WithRatingModel(rm),
		service.WithLogger(log),
		service.WithTracer(otel.Tracer("github.com/okian/versus")),
	)...)
	if err := svc.Start(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	r := chi.NewRouter()
	api.NewServer(svc, svc, cfg.MaxLeaderboardLimit, auth.NewProvider(cfg.JWTSecret),
		api.WithDefaultList(model.ListID(cfg.DefaultListID)),
	).Register(ctx, r)
	swagger.Register(ctx, r)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           r,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	if ready != nil {
		ready <- ln.Addr()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
		return err
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}
