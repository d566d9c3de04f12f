package main

import (
	"context"
	"log/slog"
	"os"
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/lib/serviceutil"
	libtelemetry "tvatt-backend/lib/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(os.Stderr, verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	tel, err := libtelemetry.SetupFromEnv(ctx, "tvatt-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		tel.Shutdown(context.Background())
	}()
	libtelemetry.InstrumentPerfStats(ctx)
}
