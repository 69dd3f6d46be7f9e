package cmd

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"

	"github.com/orchestra-mcp/listsync/config"
	"github.com/orchestra-mcp/listsync/providers"
	"github.com/orchestra-mcp/listsync/src/broker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a config file")
	return cmd
}

func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	if cfg.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.LogLevel()).With().Timestamp().Str("service", "listsyncd").Logger()
}

// openBroker connects to Redis, or to a private in-memory broker for a
// single standalone process.
func openBroker(cfg config.Config, logger zerolog.Logger) (broker.Broker, func()) {
	if cfg.Broker == config.BrokerMemory {
		backend := broker.NewMemoryBackend()
		c := backend.Connect(logger)
		logger.Warn().Msg("memory broker: events stay inside this process")
		return c, func() {
			c.Close()
			backend.Shutdown()
		}
	}

	r := broker.NewRedis(&cfg.Redis, logger)
	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("redis_addr", cfg.Redis.Addr).Msg("redis unavailable, running degraded until it returns")
	} else {
		logger.Info().Str("redis_addr", cfg.Redis.Addr).Msg("redis connected")
	}
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}

	b, closeBroker := openBroker(cfg, logger)
	defer closeBroker()

	p := providers.NewSyncProvider(cfg, b, logger)
	if err := p.Activate(); err != nil {
		ln.Close()
		return err
	}

	app := fiber.New(fiber.Config{AppName: "listsyncd"})
	p.RegisterRoutes(app)
	srv := &fasthttp.Server{Handler: p.Handler(app), Name: "listsyncd"}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info().Str("listen", ln.Addr().String()).Str("broker", cfg.Broker).Msg("listsyncd started")

	select {
	case err := <-errCh:
		p.Deactivate()
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	if err := p.Deactivate(); err != nil {
		logger.Error().Err(err).Msg("deactivate error")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}
