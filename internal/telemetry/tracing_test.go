package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderExportsSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(ctx, Config{ServiceName: "article-scraper-test"}, WithExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := otel.Tracer("test").Start(ctx, "scrape.record")
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NotNil(t, otel.GetTextMapPropagator())

	require.NoError(t, tp.ForceFlush(ctx))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "scrape.record", spans[0].Name)
}

func TestInitTracerProviderRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := InitTracerProvider(context.Background(), Config{ServiceName: "article-scraper-test"})
	require.ErrorContains(t, err, "project id is required")
}
