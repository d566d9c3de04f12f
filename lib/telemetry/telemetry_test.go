package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpoints(t *testing.T) {
	tel, err := Setup(context.Background(), "tvatt-test", Config{})
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupHttpExporters(t *testing.T) {
	config := Config{
		Otlp: OtlpConfig{
			Traces:  OtlpConnConfig{HttpEndpoint: "http://127.0.0.1:4318/v1/traces"},
			Metrics: OtlpConnConfig{HttpEndpoint: "http://127.0.0.1:4318/v1/metrics"},
		},
	}
	tel, err := Setup(context.Background(), "tvatt-test", config)
	require.NoError(t, err)
	require.NotNil(t, tel.TracerProvider)
	require.NotNil(t, tel.MeterProvider)
	// nothing listens on the endpoint, only the providers' lifecycle is under test
	_ = tel.Shutdown(context.Background())
}

func TestSetupFromEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "telemetry.json5"), []byte(`{ otlp: {} }`), 0644))
	t.Chdir(dir)

	tel, err := SetupFromEnv(context.Background(), "tvatt-test")
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
}
