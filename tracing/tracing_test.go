package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetup_Disabled(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, noop.TracerProvider{}, tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_RequiresEndpoint(t *testing.T) {
	_, _, err := Setup(context.Background(), Config{Enabled: true})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestSetup_ExportsOnShutdown(t *testing.T) {
	var (
		posts atomic.Int32
		path  atomic.Value
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()

	tp, shutdown, err := Setup(ctx, Config{Enabled: true, Endpoint: srv.URL + "/v1/traces", ServiceName: "agentloop-test"})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "agentloop.run")
	span.End()

	require.NoError(t, shutdown(ctx))
	assert.Equal(t, int32(1), posts.Load())
	assert.Equal(t, "/v1/traces", path.Load())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(Config{Endpoint: "http://collector:4318/v1/traces", Insecure: true}), 1)
	assert.Len(t, exporterOptions(Config{Endpoint: "collector:4318", Insecure: true}), 2)
	assert.Len(t, exporterOptions(Config{Endpoint: "collector:4318"}), 1)
}
