package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/apperr"
	"github.com/sells-group/activation-core/internal/correlate"
	"github.com/sells-group/activation-core/internal/intake"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/monitoring"
	"github.com/sells-group/activation-core/internal/resilience"
	"github.com/sells-group/activation-core/internal/store"
)

var servePort int

// serverDeps bundles what the HTTP surface needs.
type serverDeps struct {
	engine       *correlate.Engine
	collector    *monitoring.Collector
	maxBodyBytes int64
	origins      []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the payment webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		collector := monitoring.NewCollector(st)
		deps := serverDeps{
			engine:       correlate.New(st),
			collector:    collector,
			maxBodyBytes: cfg.Intake.MaxBodyBytes,
			origins:      cfg.Server.AllowedOrigins,
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(deps),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter wires the HTTP routes.
func newRouter(deps serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.collector.Collect(r.Context(), 24)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Post("/webhook/payment", deps.handlePaymentWebhook)

	r.Get("/correlations", func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		correlations, err := deps.engine.List(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, correlations)
	})

	r.Get("/correlations/{id}/audit", func(w http.ResponseWriter, r *http.Request) {
		audit, err := deps.engine.Audit(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, audit)
	})

	r.Post("/correlations/{id}/override", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Outcome string `json:"outcome"`
			Reason  string `json:"reason"`
			Actor   string `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.NewValidation("body", "invalid request body"))
			return
		}
		updated, err := deps.engine.Override(r.Context(), chi.URLParam(r, "id"),
			model.OutcomeType(req.Outcome), req.Reason, req.Actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})

	r.Get("/conflicts", func(w http.ResponseWriter, r *http.Request) {
		limit := intQuery(r, "limit", 50)
		conflicts, err := deps.engine.Conflicts(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conflicts)
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		var clientID *int64
		if raw := r.URL.Query().Get("client_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, apperr.NewValidation("client_id", "not a number: %q", raw))
				return
			}
			clientID = &id
		}
		m, err := deps.engine.MetricsFor(r.Context(), clientID, time.Time{}, time.Time{})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})

	return r
}

// handlePaymentWebhook ingests one provider payment notification. The
// endpoint is idempotent on event_id: exact re-deliveries return 200 with
// the stored correlation, mismatched ones return 409 after parking the
// payload for review.
func (deps serverDeps) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, deps.maxBodyBytes))
	if err != nil {
		writeError(w, apperr.NewValidation("body", "unreadable request body"))
		return
	}

	ev, err := intake.Normalize(body)
	if err != nil {
		writeError(w, err)
		return
	}

	var c *model.Correlation
	retry := resilience.StoreRetryConfig()
	retry.OnRetry = resilience.RetryLogger("webhook", "ingest")
	err = resilience.Do(r.Context(), retry, func(ctx context.Context) error {
		var ingestErr error
		c, ingestErr = deps.engine.Ingest(ctx, *ev)
		return ingestErr
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func filterFromQuery(r *http.Request) (store.CorrelationFilter, error) {
	filter := store.CorrelationFilter{
		Limit:  intQuery(r, "limit", 100),
		Offset: intQuery(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, apperr.NewValidation("client_id", "not a number: %q", raw)
		}
		filter.ClientID = &id
	}
	return filter, nil
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsPrecondition(err):
		status = http.StatusUnprocessableEntity
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case apperr.IsConflict(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
