// Package server wires the climate API, metrics and static files into one
// http.Handler.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeblew999/plat-climate/internal/api"
	"github.com/joeblew999/plat-climate/internal/content"
	"github.com/joeblew999/plat-climate/internal/db"
	"github.com/joeblew999/plat-climate/internal/humastar"
	"github.com/joeblew999/plat-climate/internal/layer"
	"github.com/joeblew999/plat-climate/internal/mapdata"
	"github.com/joeblew999/plat-climate/internal/observability"
	"github.com/joeblew999/plat-climate/internal/service"
	"github.com/joeblew999/plat-climate/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // layer store root; also holds styles.json and the DuckDB file
	WebDir  string // optional web/ directory for static files and template overrides

	DBDriver string
	DBDSN    string

	AdminPassword string

	CacheTTL      time.Duration
	CacheMaxBytes int64
	LayerGlob     string
	Watch         bool
}

// Validate checks the configuration. Errors name the offending option.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DataDir == "" {
		return errors.New("data-dir is required")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache-ttl must not be negative, got %s", c.CacheTTL)
	}
	if c.LayerGlob != "" && !doublestar.ValidatePattern(c.LayerGlob) {
		return fmt.Errorf("layer-glob %q is not a valid pattern", c.LayerGlob)
	}
	if err := c.dbConfig().Validate(); err != nil {
		return fmt.Errorf("db-driver/db-dsn: %w", err)
	}
	if c.WebDir != "" {
		info, err := os.Stat(c.WebDir)
		if err != nil {
			return fmt.Errorf("web-dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("web-dir %s is not a directory", c.WebDir)
		}
	}
	return nil
}

func (c Config) dbConfig() db.Config {
	return db.Config{Driver: c.DBDriver, DSN: c.DBDSN, DataDir: c.DataDir, DBName: "climate"}
}

// Server is the climate HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	store    *service.LayerStore
	services *api.Services
	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewHumaConfig returns the OpenAPI config of the climate API.
func NewHumaConfig(host, port string) huma.Config {
	humaConfig := huma.DefaultConfig("plat-climate API", api.Version)
	humaConfig.Info.Description = "Climate stories, map layers and map data for the climate risk viewer."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", host, port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	return humaConfig
}

// New creates a server: it opens the content store, runs migrations and
// registers every route.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	links := humastar.NewLinks()
	humaConfig := NewHumaConfig(cfg.Host, cfg.Port)
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())
	humaAPI := humago.New(mux, humaConfig)

	store, err := service.NewLayerStore(cfg.DataDir, cfg.LayerGlob)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	clock := clockwork.NewRealClock()
	bus := service.NewEventBus(clock)
	styles := service.NewStyleService(cfg.DataDir, bus, logger)
	resolver := layer.NewResolver(store, styles, logger)
	resolver.OnStyleFailure(metrics.StyleFetchFailed)

	mapData, err := mapdata.New(store, mapdata.Options{
		TTL:           cfg.CacheTTL,
		CacheMaxBytes: cfg.CacheMaxBytes,
		Lookup:        resolver.Find,
		Recorder:      metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(ctx, cfg.dbConfig())
	if err != nil {
		mapData.Close()
		return nil, err
	}

	renderer := templates.Default()
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			if err := renderer.Override(fragmentsDir); err != nil {
				logger.Warn("fragment override failed", "dir", fragmentsDir, "error", err)
			} else {
				logger.Info("loaded fragment templates", "dir", fragmentsDir)
			}
		}
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		db:       conn,
		store:    store,
		registry: registry,
		logger:   logger,
		services: &api.Services{
			Resolver:      resolver,
			Styles:        styles,
			MapData:       mapData,
			Content:       content.NewStore(conn, clock, logger),
			Bus:           bus,
			Metrics:       metrics,
			Renderer:      renderer,
			Clock:         clock,
			Logger:        logger,
			AdminPassword: cfg.AdminPassword,
			DataDir:       cfg.DataDir,
			DBDriver:      cfg.dbConfig().Driver,
		},
	}

	s.routes()
	links.Derive(humaAPI)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the OpenAPI document of the registered routes.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Start launches background work: the layer store watcher when enabled.
// It returns once the watcher is running; the watcher stops with ctx.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Watch {
		return nil
	}
	w, err := service.NewWatcher(s.store, s.services.Clock, service.DefaultDebounce, s.layersChanged, s.logger)
	if err != nil {
		return fmt.Errorf("start layer watcher: %w", err)
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			s.logger.Error("layer watcher stopped", "error", err)
		}
	}()
	return nil
}

// layersChanged drops cached payloads and tells the admin UI.
func (s *Server) layersChanged(names []string) {
	s.services.MapData.Invalidate()
	s.logger.Info("layer store changed", "files", len(names))
	for _, name := range names {
		s.services.Bus.Publish(service.ResourceLayers, service.ActionUpdated, name)
	}
}

// Close closes server resources.
func (s *Server) Close() error {
	s.services.MapData.Close()
	return s.db.Close()
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

// handleRoot serves the frontend's index.html when a web dir is configured
// and a status document otherwise.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.config.WebDir != "" {
		index := filepath.Join(s.config.WebDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-climate",
		"status":  "running",
		"api":     humastar.EntryPoint,
	})
}
