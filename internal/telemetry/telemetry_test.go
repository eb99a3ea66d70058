package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"retailpos/pkg/flatstore"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "retailpos-test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestProviderRecordsStoreSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := NewProvider("retailpos-test", sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	path := filepath.Join(t.TempDir(), "itemDatabase.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 Item1 10.0 5\n"), 0o644))
	_, err := flatstore.New().Scan(context.Background(), path)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "flatstore.scan", spans[0].Name)
	assert.Equal(t, "retailpos-test", spans[0].Resource.Attributes()[0].Value.AsString())
}
