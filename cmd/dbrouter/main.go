package main

import (
	"flag"
	"os"

	"dbrouter/pkg/config"
	"dbrouter/pkg/datastore"
	"dbrouter/pkg/listing"
	"dbrouter/pkg/log"
	"dbrouter/pkg/router"
	"dbrouter/pkg/server"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	// Initialize logger first
	_ = log.Logger

	configPath := flag.String("config", "", "Optional YAML file with configuration keys (environment wins)")
	addr := flag.String("addr", "", "Listen address (overrides LISTEN_ADDR)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := log.SetLevel(cfg.LogLevel); err != nil {
		log.Warn().Err(err).Str("level", cfg.LogLevel).Msg("Unknown log level, keeping info")
	}
	if *debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}

	listenAddr := cfg.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}

	opener := datastore.WithOnOpen(datastore.NewSQLOpener(datastore.DefaultPoolConfig()), listing.EnsureSchema)

	srv, err := server.NewFromConfig(cfg, opener, Version, router.WithEnvPersistence())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure server")
	}
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, operator endpoints are unauthenticated")
	}

	if err := srv.Start(listenAddr); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}

	os.Exit(0)
}
