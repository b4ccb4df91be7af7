package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/config"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/handlers"
	"github.com/jmartynas/workos-auth/internal/middleware"
)

type Server struct {
	httpServer *http.Server
	log        logrus.FieldLogger
	tlsCert    string
	tlsKey     string
}

// New routes the framework endpoints of app next to the operational endpoints
// and wraps them in the middleware chain. Plugins must be applied to app
// before New is called.
func New(cfg *config.Config, log logrus.FieldLogger, app *framework.App, gatherer prometheus.Gatherer, deps map[string]handlers.Pinger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("GET /ready", handlers.Ready(deps))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	app.Mount(mux)

	trustedProxyNetworks, err := middleware.ParseTrustedProxyCIDRs(cfg.Server.TrustedProxyCIDRs)
	if err != nil {
		log.WithError(err).WithField("value", cfg.Server.TrustedProxyCIDRs).Warn("invalid trusted proxy CIDRs, real IP will use connection remote addr")
		trustedProxyNetworks = nil
	}

	var h http.Handler = mux
	if cfg.RateLimit.PerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
		prefixes := make([]string, 0, len(cfg.Instances))
		for _, inst := range cfg.Instances {
			prefixes = append(prefixes, app.APIPrefix+"/"+inst.Name+"/auth/")
		}
		h = limiter.Limit(prefixes...)(h)
	}
	if cfg.Server.RequestTimeout > 0 {
		h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	}
	h = middleware.NoCache(h)
	h = middleware.Recoverer(log)(h)
	h = middleware.Logger(log)(h)
	h = middleware.RequestID(h)
	h = middleware.RealIPWith(trustedProxyNetworks)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		httpServer: srv,
		log:        log,
		tlsCert:    cfg.Server.TLSCertFile,
		tlsKey:     cfg.Server.TLSKeyFile,
	}
}

// Handler exposes the wrapped router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	if s.tlsCert != "" && s.tlsKey != "" {
		s.log.WithField("addr", s.httpServer.Addr).Info("server starting (HTTPS)")
		return s.httpServer.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	}
	s.log.WithField("addr", s.httpServer.Addr).Info("server starting")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}
