package telemetry_test

import (
	"context"
	"testing"

	"github.com/procurement/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p, err := telemetry.Setup(context.Background(), telemetry.Config{Enabled: false}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
	assert.False(t, p.ZapCore(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel), "log bridge is a no-op")
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Telemetry disabled, using no-op providers").Len())
}

func TestSetup_DisabledMeterStillRecords(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), telemetry.Config{}, zap.NewNop())
	require.NoError(t, err)

	m, err := telemetry.NewProcurementMetrics(p.Meter())
	require.NoError(t, err)
	m.RecordCacheLookup(context.Background(), "shops", true)
}
