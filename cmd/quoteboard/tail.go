package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/quoteboard/internal/auth"
	"github.com/rickgao/quoteboard/internal/config"
	"github.com/rickgao/quoteboard/internal/connection"
	"github.com/rickgao/quoteboard/internal/fields"
	"github.com/rickgao/quoteboard/internal/router"
)

const tailStatsInterval = 10 * time.Second

func newTailCmd(opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print decoded streamer frames to the console",
		Long: `Log in to the streamer with the configured subscriptions and print every
frame as it arrives, without the store or the board. Useful for checking
symbols and field identifiers.

Example:
  quoteboard tail --verbose`,
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

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return tail(ctx, cfg, cmd.OutOrStdout(), verbose, logger)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the raw frame JSON")
	return cmd
}

func tail(ctx context.Context, cfg *config.BoardConfig, out io.Writer, verbose bool, logger *slog.Logger) error {
	catalog := fields.Merge(fields.LevelOneDefaults(), cfg.Fields)

	authClient := auth.NewClient(authConfig(cfg), logger.With("component", "auth"))
	defer authClient.Close()

	tokens, err := startTokens(ctx, cfg, authClient, logger)
	if err != nil {
		return err
	}
	defer tokens.Stop(context.Background())

	apiClient := newAPIClient(cfg, tokens, logger)
	defer apiClient.Close()

	session := connection.NewSession(sessionConfig(cfg, catalog), apiClient, tokens, logger.With("component", "session"))
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		session.Stop(shutdownCtx)
	}()

	fmt.Fprintln(out, "streaming started - press Ctrl+C to stop")

	statsTicker := time.NewTicker(tailStatsInterval)
	defer statsTicker.Stop()

	frames := session.Messages()
	for {
		recvCtx, recvCancel := context.WithTimeout(ctx, tailStatsInterval)
		msg, ok := frames.ReceiveContext(recvCtx)
		recvCancel()

		select {
		case <-ctx.Done():
			return nil
		case <-statsTicker.C:
			st := session.Stats()
			logger.Info("stats",
				"logged_in", st.LoggedIn,
				"reconnects", st.Reconnects,
				"forwarded", st.Forwarded,
				"dropped", st.Dropped,
				"queue", frames.Len(),
			)
		default:
		}

		if !ok {
			continue
		}
		printFrame(out, catalog, msg, verbose)
	}
}

// printFrame writes one line per event, heartbeat and response in msg.
func printFrame(out io.Writer, catalog *fields.Catalog, msg connection.RawMessage, verbose bool) {
	if verbose {
		var indented bytes.Buffer
		if err := json.Indent(&indented, msg.Data, "", "  "); err != nil {
			fmt.Fprintf(out, "[RAW] %s\n", msg.Data)
			return
		}
		fmt.Fprintf(out, "[FRAME] %s\n", indented.Bytes())
		return
	}

	frame, err := router.Decode(msg.Data, msg.ReceivedAt)
	if err != nil {
		fmt.Fprintf(out, "[ERROR] %v: %s\n", err, msg.Data)
		return
	}

	for _, ev := range frame.Events {
		ids := make([]string, 0, len(ev.Fields))
		for id := range ev.Fields {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			name, ok := catalog.Resolve(id)
			if !ok {
				name = id
			}
			parts = append(parts, fmt.Sprintf("%s=%s", strings.ReplaceAll(name, " ", "_"), ev.Fields[id]))
		}
		fmt.Fprintf(out, "[%s] symbol=%s %s\n", ev.Service, ev.Symbol, strings.Join(parts, " "))
	}
	for _, hb := range frame.Heartbeats {
		fmt.Fprintf(out, "[HEARTBEAT] %s\n", hb.UTC().Format(time.RFC3339))
	}
	for _, r := range frame.Responses {
		fmt.Fprintf(out, "[RESPONSE] service=%s command=%s code=%d msg=%s\n",
			r.Service, r.Command, r.Content.Code, r.Content.Msg)
	}
}
