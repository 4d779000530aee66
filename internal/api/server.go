package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/viniciushammett/go-threat-monitor/internal/export"
	"github.com/viniciushammett/go-threat-monitor/internal/logger"
	"github.com/viniciushammett/go-threat-monitor/internal/metrics"
	"github.com/viniciushammett/go-threat-monitor/internal/ml"
	"github.com/viniciushammett/go-threat-monitor/internal/model"
	"github.com/viniciushammett/go-threat-monitor/internal/report"
	"github.com/viniciushammett/go-threat-monitor/internal/store"
)

var tracer = otel.Tracer("api")

type EventLoader interface {
	LoadRecent(limit int) ([]model.DetectionEvent, int, error)
}

type ReportBuilder interface {
	Build(ctx context.Context, p report.Period) (report.Report, error)
}

type StateReader interface {
	RecentDLQ(limit int) ([]store.DLQItem, error)
	RecentModels(limit int) ([]store.ModelInfo, error)
}

type Deps struct {
	Log       *logger.Logger
	Events    EventLoader
	Reports   ReportBuilder
	Anomaly   ml.Detector
	State     StateReader
	AuthToken string
}

type Config struct {
	Addr        string
	CORSOrigins []string
}

type Server struct {
	d Deps
	c Config
}

func NewServer(d Deps, c Config) *Server { return &Server{d: d, c: c} }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if len(s.c.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{AllowedOrigins: s.c.CORSOrigins, AllowedMethods: []string{"GET", "OPTIONS"}, AllowedHeaders: []string{"Authorization", "Content-Type"}}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/reports/{period}", s.handleReport)
		r.Get("/events", s.handleEvents)
		r.Get("/export.csv", s.handleExport)
		r.Get("/model", s.handleModel)
		r.Get("/dlq", s.handleDLQ)
	})
	return s.d.Log.HTTP(r)
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.c.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.d.Log.Info().Str("addr", s.c.Addr).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.d.AuthToken != "" {
			got := r.Header.Get("Authorization")
			if !strings.HasPrefix(got, "Bearer ") || strings.TrimPrefix(got, "Bearer ") != s.d.AuthToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "GET /v1/reports")
	defer span.End()

	p, err := report.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("period", string(p)))
	rep, err := s.d.Reports.Build(ctx, p)
	if err != nil {
		s.d.Log.Error().Err(err).Msg("build report")
		http.Error(w, "report unavailable", http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, rep)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(rep.Render()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "GET /v1/events")
	defer span.End()

	evs, _, err := s.d.Events.LoadRecent(limit(r, 200))
	if err != nil {
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, evs)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "GET /v1/export.csv")
	defer span.End()

	evs, _, err := s.d.Events.LoadRecent(limit(r, 0))
	if err != nil {
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	if err := export.WriteCSV(w, evs); err != nil {
		s.d.Log.Error().Err(err).Msg("csv export")
	}
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Status  ml.Status         `json:"status"`
		History []store.ModelInfo `json:"history"`
	}{Status: s.d.Anomaly.Status(), History: []store.ModelInfo{}}
	if s.d.State != nil {
		if h, err := s.d.State.RecentModels(limit(r, 20)); err == nil {
			out.History = h
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if s.d.State == nil {
		writeJSON(w, []store.DLQItem{})
		return
	}
	items, err := s.d.State.RecentDLQ(limit(r, 50))
	if err != nil {
		http.Error(w, "dlq unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, items)
}

func limit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
