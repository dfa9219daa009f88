// Package service hosts the optional sidecar HTTP servers: a health check
// endpoint and a Prometheus metrics endpoint. Both are disabled unless given
// a listen address.
package service

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pagetrace/pagetrace/metrics"
)

type Config struct {
	HealthzAddr string
	MetricsAddr string
	Log         *zap.SugaredLogger
}

type Service struct {
	cfg     Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	return &Service{
		cfg:     cfg,
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
	}
}

func (s *Service) Start(ctx context.Context) {
	log := s.cfg.Log

	if s.cfg.HealthzAddr != "" {
		go func() {
			log.Infow("Starting healthz server", "addr", s.cfg.HealthzAddr)
			if err := s.Healthz.Start(ctx, s.cfg.HealthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("Error starting healthz server", "error", err)
				metrics.RecordError("healthz_server")
			}
		}()
	}

	if s.cfg.MetricsAddr != "" {
		go func() {
			log.Infow("Starting metrics server", "addr", s.cfg.MetricsAddr)
			if err := s.Metrics.Start(ctx, s.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("Error starting metrics server", "error", err)
				metrics.RecordError("metrics_server")
			}
		}()
	}
}

func (s *Service) Shutdown() {
	_ = s.Healthz.Shutdown()
	_ = s.Metrics.Shutdown()
	s.cfg.Log.Infow("Service stopped")
}
