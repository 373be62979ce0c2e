package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/quoteboard/internal/connection"
	"github.com/rickgao/quoteboard/internal/database"
	"github.com/rickgao/quoteboard/internal/poller"
	"github.com/rickgao/quoteboard/internal/router"
	"github.com/rickgao/quoteboard/internal/sink"
	"github.com/rickgao/quoteboard/internal/snapshot"
)

// healthDeps are the components reported by /health. Optional ones may be nil.
type healthDeps struct {
	store   *snapshot.Store
	session interface{ Stats() connection.SessionStats }
	router  interface{ Stats() router.RouterStats }
	poller  *poller.Poller
	mirror  *sink.Mirror
	pools   *database.Pools
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(deps healthDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		storeStats := deps.store.Stats()
		health.Components["store"] = map[string]any{
			"symbols":        storeStats.Symbols,
			"applied":        storeStats.Applied,
			"rejected":       storeStats.Rejected,
			"ignored_fields": storeStats.IgnoredFields,
			"seq":            storeStats.Seq,
		}

		if deps.session != nil {
			s := deps.session.Stats()
			health.Components["session"] = map[string]any{
				"connected":  s.Connected,
				"logged_in":  s.LoggedIn,
				"since":      s.ConnectedSince,
				"reconnects": s.Reconnects,
				"forwarded":  s.Forwarded,
				"dropped":    s.Dropped,
			}
			if !s.LoggedIn {
				health.Status = "degraded"
			}
		}

		if deps.router != nil {
			rs := deps.router.Stats()
			health.Components["router"] = map[string]any{
				"messages":       rs.MessagesReceived,
				"events":         rs.EventsRouted,
				"parse_errors":   rs.ParseErrors,
				"unknown":        rs.UnknownMessages,
				"heartbeats":     rs.Heartbeats,
				"last_heartbeat": rs.LastHeartbeat,
				"queue":          rs.Input.Count,
				"queue_dropped":  rs.Input.Dropped,
			}
		}

		if deps.poller != nil {
			health.Components["poller"] = deps.poller.Stats()
		}

		if deps.mirror != nil {
			health.Components["mirror"] = deps.mirror.Stats()
		}

		if deps.pools != nil {
			if err := deps.pools.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["stores"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["stores"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/snapshots", func(w http.ResponseWriter, r *http.Request) {
		snaps := deps.store.ReadAll()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":     len(snaps),
			"fields":    deps.store.FieldNames(),
			"snapshots": snaps,
		})
	})

	return mux
}
