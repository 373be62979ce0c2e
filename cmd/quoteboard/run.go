package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/quoteboard/internal/api"
	"github.com/rickgao/quoteboard/internal/auth"
	"github.com/rickgao/quoteboard/internal/config"
	"github.com/rickgao/quoteboard/internal/connection"
	"github.com/rickgao/quoteboard/internal/database"
	"github.com/rickgao/quoteboard/internal/display"
	"github.com/rickgao/quoteboard/internal/fields"
	"github.com/rickgao/quoteboard/internal/poller"
	"github.com/rickgao/quoteboard/internal/router"
	"github.com/rickgao/quoteboard/internal/sink"
	"github.com/rickgao/quoteboard/internal/snapshot"
	"github.com/rickgao/quoteboard/internal/version"
)

const shutdownTimeout = 10 * time.Second

// stopper is any component with a context-bounded Stop.
type stopper interface {
	Stop(ctx context.Context) error
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stream quotes and render the board",
		Long: `Connect to the streamer, subscribe to every configured symbol and render
the board until interrupted.

Example:
  quoteboard run --config quoteboard.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer closer.Close()
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runBoard(ctx, cfg, logger)
		},
	}
}

// runBoard starts every component, blocks until ctx is done, then stops them
// in reverse order.
func runBoard(ctx context.Context, cfg *config.BoardConfig, logger *slog.Logger) error {
	logger.Info("starting quoteboard",
		"version", version.Version,
		"commit", version.Commit,
		"equities", len(cfg.Stream.Equities),
		"futures", len(cfg.Stream.Futures),
	)

	var started []stopper
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(shutdownCtx); err != nil {
				logger.Warn("component stop failed", "error", err)
			}
		}
		logger.Info("quoteboard stopped")
	}()

	catalog := fields.Merge(fields.LevelOneDefaults(), cfg.Fields)
	store := snapshot.NewStore(catalog, logger.With("component", "store"))

	// Tokens
	authClient := auth.NewClient(authConfig(cfg), logger.With("component", "auth"))
	defer authClient.Close()

	tokens, err := startTokens(ctx, cfg, authClient, logger)
	if err != nil {
		return err
	}
	started = append(started, tokens)

	apiClient := newAPIClient(cfg, tokens, logger)
	defer apiClient.Close()

	// Mirror stores are opened before streaming so a bad address fails fast.
	var pools *database.Pools
	if cfg.Mirror.Enabled {
		p, err := database.NewPools(ctx, cfg.Mirror)
		if err != nil {
			return fmt.Errorf("open mirror stores: %w", err)
		}
		pools = p
		defer pools.Close()
	}

	// Stream
	session := connection.NewSession(sessionConfig(cfg, catalog), apiClient, tokens, logger.With("component", "session"))
	rt := router.NewRouter(session.Messages(), store, logger.With("component", "router"))
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	started = append(started, rt)

	if err := session.Start(ctx); err != nil {
		return err
	}
	started = append(started, session)

	// Poller
	var quotePoller *poller.Poller
	if cfg.Poller.Enabled {
		quotePoller = poller.New(poller.Config{
			Interval: cfg.Poller.Interval,
			Timeout:  cfg.Poller.Timeout,
			Standby:  func() bool { return session.Stats().LoggedIn },
		}, apiClient, cfg.Stream.Symbols(), store, logger.With("component", "poller"))
		if err := quotePoller.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		started = append(started, quotePoller)
	}

	// Mirror
	var mirror *sink.Mirror
	if pools != nil {
		mirror = sink.NewMirror(sink.Config{
			InstanceID: cfg.Mirror.InstanceID,
			Interval:   cfg.Mirror.Interval,
		}, store, mirrorSinks(cfg, pools), logger.With("component", "mirror"))
		if err := mirror.Start(ctx); err != nil {
			return fmt.Errorf("start mirror: %w", err)
		}
		started = append(started, mirror)
	}

	// Health
	if cfg.Health.Enabled {
		handler := createHealthHandler(healthDeps{
			store:   store,
			session: session,
			router:  rt,
			poller:  quotePoller,
			mirror:  mirror,
			pools:   pools,
		})
		healthServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()
		started = append(started, httpStopper{healthServer})
	}

	// Board
	board := display.New(boardConfig(cfg), store, os.Stdout, logger.With("component", "display"))
	if err := board.Start(ctx); err != nil {
		return fmt.Errorf("start display: %w", err)
	}
	started = append(started, board)

	<-ctx.Done()
	logger.Info("shutting down...")
	return nil
}

// startTokens loads the stored token and starts the refresh loop.
func startTokens(ctx context.Context, cfg *config.BoardConfig, client *auth.Client, logger *slog.Logger) (*auth.TokenSource, error) {
	tokens := auth.NewTokenSource(client, cfg.Auth.TokenPath, cfg.Auth.RefreshInterval, logger.With("component", "tokens"))
	if err := tokens.Load(); err != nil {
		if errors.Is(err, auth.ErrNoToken) || errors.Is(err, auth.ErrRefreshExpired) {
			return nil, fmt.Errorf("%w: run \"quoteboard auth\" first", err)
		}
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	if err := tokens.Start(ctx); err != nil {
		return nil, fmt.Errorf("start token refresh: %w", err)
	}
	return tokens, nil
}

func newAPIClient(cfg *config.BoardConfig, tokens *auth.TokenSource, logger *slog.Logger) *api.Client {
	return api.NewClient(cfg.API.BaseURL, tokens,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RequestsPerMinute),
	)
}

// httpStopper adapts http.Server to stopper.
type httpStopper struct {
	srv *http.Server
}

func (h httpStopper) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

// sessionConfig builds one subscription per non-empty symbol list.
func sessionConfig(cfg *config.BoardConfig, catalog *fields.Catalog) connection.SessionConfig {
	sc := connection.DefaultSessionConfig()
	sc.LoginTimeout = cfg.Stream.LoginTimeout
	sc.SubscribeTimeout = cfg.Stream.SubscribeTimeout
	sc.ReconnectBaseWait = cfg.Stream.ReconnectBaseWait
	sc.ReconnectMaxWait = cfg.Stream.ReconnectMaxWait
	sc.QueueSize = cfg.Stream.QueueSize
	sc.QueueMaxSize = cfg.Stream.QueueMaxSize
	sc.Client.PingInterval = cfg.Stream.PingInterval
	sc.Client.PingTimeout = cfg.Stream.PingTimeout
	sc.Client.WriteTimeout = cfg.Stream.WriteTimeout

	fieldList := catalog.FieldList()
	if len(cfg.Stream.Equities) > 0 {
		sc.Subscriptions = append(sc.Subscriptions, connection.Subscription{
			Service: connection.ServiceLevelOneEquities,
			Keys:    cfg.Stream.Equities,
			Fields:  fieldList,
		})
	}
	if len(cfg.Stream.Futures) > 0 {
		sc.Subscriptions = append(sc.Subscriptions, connection.Subscription{
			Service: connection.ServiceLevelOneFutures,
			Keys:    cfg.Stream.Futures,
			Fields:  fieldList,
		})
	}
	return sc
}

func boardConfig(cfg *config.BoardConfig) display.Config {
	cols := make([]display.Column, 0, len(cfg.Display.Columns))
	for _, c := range cfg.Display.Columns {
		cols = append(cols, display.Column{
			Field:  c.Field,
			Header: c.Header,
			Width:  c.Width,
			Align:  c.Align,
		})
	}
	return display.Config{
		Symbols:         cfg.Stream.Symbols(),
		Columns:         cols,
		RefreshInterval: cfg.Display.RefreshInterval,
		ClearScreen:     cfg.Display.ClearScreen == nil || *cfg.Display.ClearScreen,
	}
}

func mirrorSinks(cfg *config.BoardConfig, pools *database.Pools) []sink.Sink {
	var sinks []sink.Sink
	if pools.Postgres != nil {
		sinks = append(sinks, sink.NewPostgresSink(pools.Postgres))
	}
	if pools.Redis != nil {
		sinks = append(sinks, sink.NewRedisSink(pools.Redis, cfg.Mirror.Redis.TTL))
	}
	return sinks
}
