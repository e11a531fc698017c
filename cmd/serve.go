package main

import (
	"context"
	"encoding/json"
	"fmt"
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

	"github.com/parcelscope/zoning-cli/internal/cost"
	"github.com/parcelscope/zoning-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP lookup API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

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

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		var q model.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if q.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}
		if q.Type == "" {
			q.Type = model.LookupJurisdiction
		}
		if q.Caller == "" {
			q.Caller = "api"
		}

		res, err := env.Coordinator.Resolve(r.Context(), q)
		if err != nil {
			zap.L().Error("resolve failed", zap.String("id", q.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}

		if env.Reviewer != nil && len(res.Rejections) > 0 {
			jurisdiction := q.JurisdictionID
			if jurisdiction == "" {
				jurisdiction = q.ID
			}
			sourceURL := ""
			if res.Jurisdiction != nil {
				sourceURL = res.Jurisdiction.SourceURL
			}
			if err := env.Reviewer.Report(r.Context(), model.CacheKey(jurisdiction), sourceURL, res.Rejections); err != nil {
				zap.L().Warn("failed to report rejections for review", zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/v1/costs", func(w http.ResponseWriter, r *http.Request) {
		days := 30
		if d := r.URL.Query().Get("days"); d != "" {
			n, err := strconv.Atoi(d)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a positive integer"})
				return
			}
			days = n
		}

		to := time.Now().UTC()
		sum, err := cost.GetSummary(r.Context(), env.Store, to.AddDate(0, 0, -days), to)
		if err != nil {
			zap.L().Error("cost summary failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "summary failed"})
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})

	r.Get("/v1/breakers", func(w http.ResponseWriter, r *http.Request) {
		states := make(map[string]string)
		for name, st := range env.Breakers.States() {
			states[name] = st.String()
		}
		writeJSON(w, http.StatusOK, states)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
