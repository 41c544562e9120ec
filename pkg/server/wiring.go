package server

import (
	"errors"
	"fmt"

	"dbrouter/pkg/config"
	"dbrouter/pkg/datastore"
	"dbrouter/pkg/log"
	"dbrouter/pkg/router"
)

// ErrNoDatabase is returned when neither DATABASE_URL nor DATABASE_URLS is set.
var ErrNoDatabase = errors.New("either DATABASE_URL or DATABASE_URLS must be set")

// NewFromConfig builds the proxy and server for cfg. With DATABASE_URLS set
// it creates a router and a capacity monitor; otherwise the proxy passes
// every call through to DATABASE_URL and no monitor exists.
func NewFromConfig(cfg *config.Config, opener datastore.Opener, version string, opts ...router.Option) (*Server, error) {
	if !cfg.MultiBackend() {
		if cfg.DatabaseURL == "" {
			return nil, ErrNoDatabase
		}
		log.Info().Msg("DATABASE_URLS not set, running in single backend mode")
		proxy := router.NewProxy(nil, opener, cfg.DatabaseURL)
		return NewServer(proxy, nil, cfg.AdminToken, version, cfg.ShutdownTimeout), nil
	}

	dbRouter, err := router.New(
		datastore.NewDescriptors(cfg.DatabaseURLs),
		opener,
		cfg.Thresholds,
		cfg.ActiveIndex,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("create storage router: %w", err)
	}
	monitor := router.NewMonitor(dbRouter, router.MonitorConfig{
		CheckInterval:        cfg.CheckInterval,
		StartupProbeDelay:    cfg.StartupProbeDelay,
		StartupEvaluateDelay: cfg.StartupEvaluateDelay,
	})

	log.Info().
		Int("backends", dbRouter.Len()).
		Int("active_index", dbRouter.ActiveIndex()).
		Str("limit", log.Bytes(cfg.Thresholds.LimitBytes)).
		Str("warn", log.Bytes(cfg.Thresholds.WarnBytes)).
		Dur("check_interval", cfg.CheckInterval).
		Msg("Configured storage router")

	proxy := router.NewProxy(dbRouter, opener, cfg.DatabaseURL)
	return NewServer(proxy, monitor, cfg.AdminToken, version, cfg.ShutdownTimeout), nil
}
