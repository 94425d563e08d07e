package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTelemetryInstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	defer otel.SetTracerProvider(before)

	shutdown, err := InitTelemetry(context.Background(), "camera-rig-test")
	require.NoError(t, err)
	assert.NotEqual(t, before, otel.GetTracerProvider())
	assert.NotNil(t, Tracer())

	// Без спанов экспортировать нечего, остановка не обращается к коллектору
	assert.NoError(t, shutdown(context.Background()))
}
