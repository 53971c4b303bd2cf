package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/oisp-sensor/core/pkg/event"
)

// batchRecorder is a fake cloud /v1/events/batch endpoint with an on/off
// switch: offline, it severs the TCP connection so the client sees a
// network-class error; online, it records every delivered batch.
type batchRecorder struct {
	online atomic.Bool

	mu      sync.Mutex
	batches [][]json.RawMessage
}

func (b *batchRecorder) handler(w http.ResponseWriter, r *http.Request) {
	if !b.online.Load() {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.batches = append(b.batches, req.Events)
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batchResponse{Received: len(req.Events), BatchID: "batch-1"})
}

func (b *batchRecorder) delivered() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []json.RawMessage
	for _, batch := range b.batches {
		all = append(all, batch...)
	}
	return all
}

func (b *batchRecorder) batchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

func validCredentials(baseURL string) Credentials {
	return Credentials{
		DeviceID:       "dev-1",
		DeviceToken:    "token-live",
		TokenExpiresAt: time.Now().Add(time.Hour),
		APIEndpoint:    baseURL,
	}
}

func testExporter(t *testing.T, baseURL string) (*Exporter, *OfflineQueue) {
	t.Helper()
	client := NewClient(baseURL, nil)
	client.SetCredentials(validCredentials(baseURL))

	queue, err := OpenOfflineQueue(filepath.Join(t.TempDir(), "queue.db"), 1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	exp := &Exporter{
		Client:        client,
		Queue:         queue,
		BatchSize:     100,
		retryInterval: time.Millisecond,
	}
	exp.SetDeviceID("dev-1")
	return exp, queue
}

func TestExporterOfflineThenDrain(t *testing.T) {
	recorder := &batchRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer srv.Close()

	exp, queue := testExporter(t, srv.URL)
	ctx := context.Background()

	evCtx, err := event.NewContext("test")
	require.NoError(t, err)

	// Network down: 250 events at batch_size 100 means three attempted
	// batches, all durably queued, none lost.
	for i := 0; i < 250; i++ {
		ev := evCtx.NewEvent(&event.AIRequestData{RequestID: fmt.Sprintf("req-%03d", i)})
		require.NoError(t, exp.Export(ctx, ev))
	}
	require.NoError(t, exp.Flush(ctx))

	pending, err := queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, pending)
	assert.EqualValues(t, 0, exp.ExportedCount())

	// Network restored: the drainer empties the queue in order.
	recorder.online.Store(true)
	exp.drainOffline(ctx)

	pending, err = queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	assert.EqualValues(t, 250, exp.ExportedCount())
	assert.Equal(t, 3, recorder.batchCount(), "250 events drain as 100+100+50")

	all := recorder.delivered()
	require.Len(t, all, 250)
	for i, raw := range all {
		assert.Equal(t, fmt.Sprintf("req-%03d", i), gjson.GetBytes(raw, "request_id").String(),
			"recovered events stay ordered relative to each other")
	}
}

func TestExporterDeliversWhenOnline(t *testing.T) {
	recorder := &batchRecorder{}
	recorder.online.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer srv.Close()

	exp, queue := testExporter(t, srv.URL)
	ctx := context.Background()

	evCtx, err := event.NewContext("test")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, exp.Export(ctx, evCtx.NewEvent(&event.AIRequestData{RequestID: fmt.Sprintf("r%d", i)})))
	}
	require.NoError(t, exp.Flush(ctx))

	assert.EqualValues(t, 5, exp.ExportedCount())
	pending, err := queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestExporterRotatesOnTokenExpired(t *testing.T) {
	const oldToken = "token-live"
	const newToken = "token-rotated"

	recorder := &batchRecorder{}
	recorder.online.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/devices/dev-1/rotate-token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rotateResponse{DeviceToken: newToken, ExpiresAt: time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("/v1/events/batch", func(w http.ResponseWriter, r *http.Request) {
		// The server-side view of expiry disagrees with the client clock:
		// the original token is rejected even though it looks valid.
		if r.Header.Get("Authorization") == "Bearer "+oldToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(errorBody{Code: "token_expired", Message: "expired server-side"})
			return
		}
		recorder.handler(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	exp, queue := testExporter(t, srv.URL)
	ctx := context.Background()

	evCtx, err := event.NewContext("test")
	require.NoError(t, err)
	require.NoError(t, exp.Export(ctx, evCtx.NewEvent(&event.AIRequestData{RequestID: "r1"})))
	require.NoError(t, exp.Flush(ctx))

	assert.EqualValues(t, 1, exp.ExportedCount(), "the retry after rotation delivers the batch")
	assert.False(t, exp.authDown.Load())
	pending, perr := queue.PendingCount(ctx)
	require.NoError(t, perr)
	assert.Equal(t, 0, pending)

	all := recorder.delivered()
	require.Len(t, all, 1)
}

func TestExporterAuthFailureStopsSendsAndQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(errorBody{Code: "invalid_api_key", Message: "nope"})
	}))
	defer srv.Close()

	exp, queue := testExporter(t, srv.URL)
	ctx := context.Background()

	evCtx, err := event.NewContext("test")
	require.NoError(t, err)
	require.NoError(t, exp.Export(ctx, evCtx.NewEvent(&event.AIRequestData{RequestID: "r1"})))
	require.NoError(t, exp.Flush(ctx))

	pending, err := queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "an auth failure queues the batch rather than losing it")
	assert.True(t, exp.authDown.Load())

	// With auth marked down, later batches skip the wire entirely.
	require.NoError(t, exp.Export(ctx, evCtx.NewEvent(&event.AIRequestData{RequestID: "r2"})))
	require.NoError(t, exp.Flush(ctx))
	pending, err = queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}
