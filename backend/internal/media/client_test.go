package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"currents/backend/internal/telemetry"
)

func TestClient_Release_SendsExternalRef(t *testing.T) {
	var gotRef atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/release", r.URL.Path)

		var req releaseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotRef.Store(req.ExternalRef)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, telemetry.NewNopMetrics())

	err := client.Release(context.Background(), "blob-42")
	require.NoError(t, err)
	assert.Equal(t, "blob-42", gotRef.Load())
}

func TestClient_Release_ErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, telemetry.NewNopMetrics())

	err := client.Release(context.Background(), "blob-42")
	assert.Error(t, err)
}

func TestClient_Release_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, telemetry.NewNopMetrics())

	for i := 0; i < 10; i++ {
		err := client.Release(context.Background(), "blob-42")
		assert.Error(t, err)
	}

	// Breaker trips at 5 consecutive failures, so later calls never
	// reach the server.
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}
