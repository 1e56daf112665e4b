package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Meter("heatbox"))
}

func TestNew_EnabledWithoutSinks(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "heatbox"})
	assert.Error(t, err)
}

func TestNew_WriterExport(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "heatbox",
		Version:      "test",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	var rec log.Record
	rec.SetBody(log.StringValue("fire spawned"))
	rec.SetTimestamp(time.Now())
	p.LoggerProvider().Logger("heatbox").Emit(context.Background(), rec)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "fire spawned")
	assert.Contains(t, buf.String(), "heatbox")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSessionEndedFlushes(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "heatbox",
		BatchTimeout: time.Minute,
		LogWriter:    &buf,
		Attributes:   map[string]string{"heatbox.scenario": "warehouse.yaml"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	var rec log.Record
	rec.SetBody(log.StringValue("session over"))
	p.LoggerProvider().Logger("heatbox").Emit(context.Background(), rec)

	p.SessionEnded(12)
	assert.Contains(t, buf.String(), "session over")
	assert.Contains(t, buf.String(), "warehouse.yaml")
}

func TestSessionEndedDisabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.NotPanics(t, func() { p.SessionEnded(1) })
}
