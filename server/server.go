package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ncmfm/config"
	"ncmfm/core/plugin"
	"ncmfm/core/playback"
	"ncmfm/logger"
)

// Server 提供解析与 PCM 推流接口
type Server struct {
	cfg       *config.Config
	plugins   *plugin.MusicPluginManager
	listeners playback.Listeners
	metrics   *Metrics
	router    *mux.Router
	server    *http.Server
}

// New builds the router. Listeners are attached to every source the server opens.
func New(cfg *config.Config, plugins *plugin.MusicPluginManager, metrics *Metrics, listeners ...playback.Listener) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		cfg:       cfg,
		plugins:   plugins,
		listeners: append(playback.Listeners{metrics}, listeners...),
		metrics:   metrics,
	}
	s.router = s.setupRoutes()

	// 推流是长连接，不设 WriteTimeout
	s.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "X-Slot-Id, X-Sample-Rate, X-Channels, X-Codec, X-Track-Title")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// 网易云音乐相关的API端点
	router.HandleFunc("/api/netease/resolve", s.handleResolve).Methods(http.MethodGet)
	router.HandleFunc("/api/netease/stream", s.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/ws/netease/stream", s.handleStreamWS).Methods(http.MethodGet)

	return router
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	logger.Info("[Server] HTTP 服务启动", logger.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		logger.Info("[Server] 正在关闭 HTTP 服务")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("[Server] 关闭 HTTP 服务失败", logger.ErrorField(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	logger.Info("[Server] HTTP 服务已停止")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ncmfm",
		"sources": s.plugins.Sources(),
	})
}
