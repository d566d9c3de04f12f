package main

import (
	"flag"
	"time"
	"tvatt-backend/internal/api"
	"tvatt-backend/internal/cache"
	"tvatt-backend/internal/components/chrono"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/config"
	"tvatt-backend/internal/scrapers/webboka"
	"tvatt-backend/internal/service"
	"tvatt-backend/lib/restyutil"
	"tvatt-backend/lib/serviceutil"

	_ "time/tzdata"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	dumpDir := flag.String("dump", "", "Write every portal request/response to this directory (credentials redacted).")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	var dump restyutil.Output
	if *dumpDir != "" {
		dump, err = restyutil.NewFilesystemOutput(*dumpDir)
		if err != nil {
			serviceutil.Fatal("init dump output", err)
		}
	}

	server, err := NewServer(cfg, telemetry.SlogAPI{}, dump)
	if err != nil {
		serviceutil.Fatal("init server", err)
	}

	err = serviceutil.StartHttpServer(ctx, cfg.Port, server, 10*time.Second)
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}

// NewServer wires the portal client, caches and orchestrator behind the HTTP API.
func NewServer(cfg config.Config, tel telemetry.API, dump restyutil.Output) (*api.Server, error) {
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	client, err := webboka.NewClient(webboka.ClientOptions{
		BaseUrl:           cfg.BaseUrl,
		RequestsPerSecond: cfg.RequestsPerSecond,
		CloudflareBypass:  cfg.CloudflareBypass,
		Classifier:        cfg.Classifier(),
		Dump:              dump,
		Clock:             clock,
		Tel:               tel,
	})
	if err != nil {
		return nil, err
	}

	fingerprints, err := cache.NewFingerprinter()
	if err != nil {
		return nil, err
	}
	sessions, err := cache.NewSessionStore(client, fingerprints, cache.Options{
		TTL:      cfg.SessionTTL,
		Capacity: cfg.CacheCapacity,
		Clock:    clock,
		Tel:      tel,
	})
	if err != nil {
		return nil, err
	}
	results, err := cache.NewResultCache(cache.Options{
		TTL:      cfg.ResultTTL,
		Capacity: cfg.CacheCapacity,
		Clock:    clock,
		Tel:      tel,
	})
	if err != nil {
		return nil, err
	}

	status := service.NewStatusService(sessions, results, client, fingerprints, service.Options{
		FetchTimeout: cfg.FetchTimeout,
		Tel:          tel,
	})
	return api.NewServer(status, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Tel:            tel,
	}), nil
}
