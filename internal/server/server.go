// Package server exposes uplink trees over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/gustycube/uplinks/internal/health"
	"github.com/gustycube/uplinks/internal/logging"
	"github.com/gustycube/uplinks/internal/metrics"
	"github.com/gustycube/uplinks/internal/output"
	"github.com/gustycube/uplinks/internal/uplinks"
)

// Runner builds one tree into a sink
type Runner interface {
	Run(ctx context.Context, query string, deep int, sink uplinks.Sink) error
}

type Options struct {
	Deep    int
	Timeout time.Duration
	Log     *logging.Logger
}

type Server struct {
	runner  Runner
	health  *health.Handler
	log     *logging.Logger
	deep    int
	timeout time.Duration
}

func New(runner Runner, h *health.Handler, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Deep < 1 || opts.Deep > uplinks.MaxDeep {
		opts.Deep = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if h == nil {
		h = health.NewHandler(opts.Log)
	}
	return &Server{runner: runner, health: h, log: opts.Log, deep: opts.Deep, timeout: opts.Timeout}
}

// Routes returns the API router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health.HealthHandler)
	r.Get("/ready", s.health.ReadinessHandler)
	r.Get("/live", s.health.LivenessHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Get("/uplinks/{query}", s.getUplinks)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains for up to 10s
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	s.health.SetReady(true)

	select {
	case err := <-errCh:
		s.health.SetReady(false)
		return err
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getUplinks(w http.ResponseWriter, r *http.Request) {
	query := chi.URLParam(r, "query")

	deep := s.deep
	if v := r.URL.Query().Get("deep"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 || d > uplinks.MaxDeep {
			render.Render(w, r, errBadRequest(uplinks.ErrInvalidDepth))
			return
		}
		deep = d
	}

	format := output.FormatJSON
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := output.ParseFormat(v)
		if err != nil {
			render.Render(w, r, errBadRequest(err))
			return
		}
		format = f
	}

	col := uplinks.NewCollector(query, deep)
	err := s.runner.Run(r.Context(), query, deep, col)
	switch {
	case err == nil:
	case errors.Is(err, uplinks.ErrInvalidQuery), errors.Is(err, uplinks.ErrInvalidDepth):
		render.Render(w, r, errBadRequest(err))
		return
	case errors.Is(err, uplinks.ErrUnresolved):
		render.Render(w, r, errNotFound(err))
		return
	case errors.Is(err, context.DeadlineExceeded):
		render.Render(w, r, errTimeout(err))
		return
	default:
		s.log.Warnw("tree build failed", "query", query, "deep", deep, "err", err)
		render.Render(w, r, errInternal(err))
		return
	}

	if format == output.FormatJSON {
		render.JSON(w, r, col.Tree())
		return
	}
	s.writeTree(w, format, col.Tree())
}

func (s *Server) writeTree(w http.ResponseWriter, format output.Format, tree *uplinks.Tree) {
	ow, err := output.NewWriter(string(format), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	switch ow.Format() {
	case output.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case output.FormatJSONL:
		w.Header().Set("Content-Type", "application/x-ndjson")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := ow.WriteTree(tree); err != nil {
		s.log.Debugw("write response", "err", err)
		return
	}
	ow.Flush()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
