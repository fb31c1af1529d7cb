// Package server is the svgrender dev server: on-demand asset rendering
// with ETag revalidation, the manifest as a virtual module, and a websocket
// channel that tells browsers to reload when sources change.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/svgrender/internal/config"
	"github.com/conneroisu/svgrender/internal/logging"
	"github.com/conneroisu/svgrender/internal/manifest"
	"github.com/conneroisu/svgrender/internal/metrics"
	"github.com/conneroisu/svgrender/internal/renderer"
	"github.com/conneroisu/svgrender/internal/version"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/net/netutil"
)

// Routes served besides the asset prefix.
const (
	RouteWebSocket    = "/__svgrender/ws"
	RouteClient       = "/__svgrender/client.js"
	RouteModule       = "/@svgrender/manifest"
	RouteManifestJSON = "/@svgrender/manifest.json"
	RouteHealth       = "/healthz"
	RouteMetrics      = "/metrics"
)

// DevServer wires the asset handler, manifest endpoints and reload hub.
type DevServer struct {
	cfg            *config.Config
	source         CatalogSource
	assets         *AssetHandler
	hub            *Hub
	metricsHandler http.Handler
	logger         logging.Logger

	mutex      sync.RWMutex
	httpServer *http.Server
	listener   net.Listener
	started    time.Time
}

// New creates a dev server. metricsHandler may be nil to disable /metrics.
func New(cfg *config.Config, source CatalogSource, render renderer.Func, logger logging.Logger, recorder metrics.Recorder, metricsHandler http.Handler) *DevServer {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")

	assets := NewAssetHandler(AssetOptions{
		URLPrefix:     cfg.URLPrefix,
		Scales:        cfg.Scales,
		ServeOriginal: cfg.CopyOriginal,
	}, source, render, logger, recorder)

	origins := []string{
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}
	if cfg.Server.Host != "" {
		origins = append(origins, cfg.Server.Addr())
	}

	return &DevServer{
		cfg:            cfg,
		source:         source,
		assets:         assets,
		hub:            NewHub(origins, logger),
		metricsHandler: metricsHandler,
		logger:         logger,
	}
}

// Hub returns the reload hub. It satisfies invalidation.Notifier.
func (s *DevServer) Hub() *Hub {
	return s.hub
}

// Handler builds the HTTP handler tree.
func (s *DevServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RouteClient, s.handleClient)
	mux.HandleFunc(RouteModule, s.handleModule)
	mux.HandleFunc(RouteManifestJSON, s.handleManifestJSON)
	mux.HandleFunc(RouteHealth, s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle(RouteMetrics, s.metricsHandler)
	}

	var fallback http.Handler = http.NotFoundHandler()
	if s.cfg.Server.StaticDir != "" {
		fallback = http.FileServer(http.Dir(s.cfg.Server.StaticDir))
	}
	mux.Handle("/", s.assets.Wrap(fallback))

	var handler http.Handler = mux
	if s.cfg.Server.Compress {
		handler = gzhttp.GzipHandler(handler)
	}

	// The websocket route stays outside the gzip wrapper, which does not
	// support hijacking.
	root := http.NewServeMux()
	root.Handle(RouteWebSocket, s.hub)
	root.Handle("/", handler)
	return Chain(root, LogRequests(s.logger), Recover(s.logger), AllowCORS())
}

// Listen binds the configured address, capping concurrent connections.
func (s *DevServer) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.cfg.Server.Addr(), err)
	}
	if s.cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConnections)
	}
	return ln, nil
}

// Serve runs the server on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *DevServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mutex.Lock()
	s.httpServer = srv
	s.listener = ln
	s.started = time.Now()
	s.mutex.Unlock()

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Dev server listening",
			"addr", ln.Addr().String(),
			"prefix", s.assets.Prefix(),
			"scales", s.cfg.Scales,
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Start listens on the configured address and serves until ctx ends.
func (s *DevServer) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the bound address, or "" before Serve.
func (s *DevServer) Addr() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	s.mutex.RLock()
	srv := s.httpServer
	s.mutex.RUnlock()
	if srv == nil {
		return nil
	}
	s.logger.Info(ctx, "Shutting down dev server")
	if err := srv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *DevServer) currentManifest() manifest.Manifest {
	return manifest.Build(s.source.Load(), s.cfg.Scales, s.cfg.URLPrefix, s.cfg.CopyOriginal)
}

func (s *DevServer) handleModule(w http.ResponseWriter, r *http.Request) {
	src, err := manifest.ModuleSource(s.currentManifest())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to render manifest module")
		http.Error(w, "manifest unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(src))
}

func (s *DevServer) handleManifestJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.currentManifest().JSON()
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode manifest")
		http.Error(w, "manifest unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (s *DevServer) handleClient(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(clientScript))
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Assets  int       `json:"assets"`
	Clients int       `json:"clients"`
	Started time.Time `json:"started"`
}

func (s *DevServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mutex.RLock()
	started := s.started
	s.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:  "ok",
		Version: version.Get().Short(),
		Assets:  s.source.Load().Len(),
		Clients: s.hub.ClientCount(),
		Started: started,
	})
}
