// Package monitor serves the terminal diagnostics API: queue and
// torn-log snapshots, health and Prometheus metrics. Intended for
// loopback access by fleet tooling.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/durability/reversal"
	"github.com/mgthompo1/tapkernel/internal/durability/torn"
)

// Server is the diagnostics HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds the server over the durable stores.
func New(port string, tornLog *torn.Log, reversals *reversal.Queue, logger *zap.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}}))

	h := &handlers{tornLog: tornLog, reversals: reversals, logger: logger}

	router.Get("/health", h.health)
	router.Get("/reversals", h.listReversals)
	router.Post("/reversals/{reversalID}/clear", h.clearReversal)
	router.Get("/torn", h.listTorn)
	router.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting monitor server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("monitor server error", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down monitor server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("monitor server shutdown error: %w", err)
	}
	return nil
}

type handlers struct {
	tornLog   *torn.Log
	reversals *reversal.Queue
	logger    *zap.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *handlers) listReversals(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.reversals.Snapshot())
}

func (h *handlers) listTorn(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.tornLog.Snapshot())
}

func (h *handlers) clearReversal(w http.ResponseWriter, r *http.Request) {
	reversalID := chi.URLParam(r, "reversalID")

	rec, err := h.reversals.ManuallyClear(r.Context(), reversalID)
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Info("reversal manually cleared", zap.String("reversal_id", reversalID))
	render.JSON(w, r, rec)
}
