package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/geojson"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/services/collector"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
)

const DefaultAddr = ":8082"

type Collector interface {
	Status() collector.Status
	Trigger()
	TestSetup(ctx context.Context) bool
	Cleanup(ctx context.Context, daysToKeep int) (collector.CleanupResult, error)
}

type Positions interface {
	Latest(ctx context.Context, assetID string) (*models.Position, error)
	Since(ctx context.Context, since time.Time, assetID string) ([]models.Position, error)
	Stats(ctx context.Context) (models.DatabaseStats, error)
	Assets(ctx context.Context) ([]string, error)
	Count(ctx context.Context, assetID string) (int64, error)
	GeoJSON(ctx context.Context, since time.Time, assetID string, kind geojson.GeometryKind) (*geojson.FeatureCollection, error)
}

type Options struct {
	Collector Collector
	Positions Positions
	// Settings is served as-is on /config; keep secrets out of it.
	Settings           any
	DefaultCleanupDays int
	DefaultSince       time.Duration
	Now                func() time.Time
}

type Server struct {
	opts Options
}

func New(opts Options) *Server {
	if opts.DefaultSince <= 0 {
		opts.DefaultSince = 24 * time.Hour
	}
	if opts.DefaultCleanupDays <= 0 {
		opts.DefaultCleanupDays = 30
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Server{opts: opts}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.readyz)
	r.Get("/status", s.status)
	r.Get("/stats", s.stats)
	r.Get("/config", s.config)
	r.Get("/assets", s.assets)
	r.Get("/positions", s.positionsSince)
	r.Get("/positions/latest", s.latest)
	r.Get("/positions/count", s.count)
	r.Get("/positions.geojson", s.positionsGeoJSON)
	r.Post("/trigger", s.trigger)
	r.Post("/cleanup", s.cleanup)
	return r
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Collector == nil || !s.opts.Collector.TestSetup(r.Context()) {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "not ready"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.opts.Collector == nil {
		render.Render(w, r, errUnexpected(errors.New("collector not wired")))
		return
	}
	render.JSON(w, r, s.opts.Collector.Status())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Positions.Stats(r.Context())
	if err != nil {
		render.Render(w, r, errFor(err))
		return
	}
	render.JSON(w, r, st)
}

func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	if s.opts.Settings == nil {
		render.JSON(w, r, map[string]string{})
		return
	}
	render.JSON(w, r, s.opts.Settings)
}

func (s *Server) assets(w http.ResponseWriter, r *http.Request) {
	ids, err := s.opts.Positions.Assets(r.Context())
	if err != nil {
		render.Render(w, r, errFor(err))
		return
	}
	render.JSON(w, r, map[string]any{"assets": ids})
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	p, err := s.opts.Positions.Latest(r.Context(), r.URL.Query().Get("asset"))
	if err != nil {
		render.Render(w, r, errFor(err))
		return
	}
	render.JSON(w, r, p)
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	n, err := s.opts.Positions.Count(r.Context(), asset)
	if err != nil {
		render.Render(w, r, errFor(err))
		return
	}
	render.JSON(w, r, map[string]any{"asset_id": asset, "count": n})
}

type positionsResponse struct {
	Since     time.Time         `json:"since"`
	AssetID   string            `json:"asset_id,omitempty"`
	Count     int               `json:"count"`
	Positions []models.Position `json:"positions"`
}

func (s *Server) positionsSince(w http.ResponseWriter, r *http.Request) {
	since, err := s.sinceParam(r)
	if err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	ps, err := s.opts.Positions.Since(r.Context(), since, asset)
	if err != nil {
		render.Render(w, r, errFor(err))
		return
	}
	render.JSON(w, r, positionsResponse{Since: since, AssetID: asset, Count: len(ps), Positions: ps})
}

func (s *Server) positionsGeoJSON(w http.ResponseWriter, r *http.Request) {
	since, err := s.sinceParam(r)
	if err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}
	kind, err := geojson.ParseGeometry(r.URL.Query().Get("geometry"))
	if err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}
	fc, err := s.opts.Positions.GeoJSON(r.Context(), since, r.URL.Query().Get("asset"), kind)
	if err != nil {
		render.Render(w, r, errFor(err))
		return
	}
	b, err := fc.ToJSON()
	if err != nil {
		render.Render(w, r, errUnexpected(err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(b)
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	if s.opts.Collector == nil {
		render.Render(w, r, errUnexpected(errors.New("collector not wired")))
		return
	}
	s.opts.Collector.Trigger()
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]bool{"triggered": true})
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	if s.opts.Collector == nil {
		render.Render(w, r, errUnexpected(errors.New("collector not wired")))
		return
	}
	days := s.opts.DefaultCleanupDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			render.Render(w, r, errInvalidRequest(errors.Errorf("days must be a non-negative integer, got %q", v)))
			return
		}
		days = n
	}
	out, err := s.opts.Collector.Cleanup(r.Context(), days)
	if err != nil {
		render.Render(w, r, errUnexpected(err))
		return
	}
	render.JSON(w, r, out)
}

func (s *Server) sinceParam(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return s.opts.Now().Add(-s.opts.DefaultSince), nil
	}
	return models.ParseSince(v, s.opts.Now())
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Run serves h on addr until ctx is done. onListen receives the bound
// address, which matters when addr uses port 0.
func Run(ctx context.Context, addr string, h http.Handler, onListen func(addr string)) error {
	if addr == "" {
		addr = DefaultAddr
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	if onListen != nil {
		onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
