package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ashita-ai/salesbench/internal/telemetry"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{ServiceName: "salesbench"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitInstallsTraceContextPropagator(t *testing.T) {
	_, err := telemetry.Init(context.Background(), telemetry.Config{})
	require.NoError(t, err)
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestMeterAndTracerAreUsableWithoutInit(t *testing.T) {
	counter, err := telemetry.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := telemetry.Tracer("test").Start(context.Background(), "op")
	span.End()
}
