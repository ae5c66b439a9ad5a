package flowstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{BaseURL: srv.URL, Timeout: 2 * time.Second, RetryCount: 1})
}

func TestGetFlowBinderSendsRoutingIdentity(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/binders/resolve", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "lin", q.Get("packaging"))
		assert.Equal(t, "basis", q.Get("format"))
		assert.Equal(t, "utf8", q.Get("charset"))
		assert.Equal(t, "870970", q.Get("submitter"))
		assert.Equal(t, "broend", q.Get("destination"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(FlowBinder{ID: 3, Version: 2, Content: FlowBinderContent{
			Name: "binder", RecordSplitter: "ISO2709", FlowID: 11, SinkID: 12,
		}})
	}))

	binder, err := client.GetFlowBinder(context.Background(), "lin", "basis", "utf8", 870970, "broend")
	require.NoError(t, err)
	assert.Equal(t, int64(3), binder.ID)
	assert.Equal(t, "ISO2709", binder.Content.RecordSplitter)
	assert.Equal(t, int64(12), binder.Content.SinkID)
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))

	_, err := client.GetSink(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":5,"version":1,"content":{"number":870970,"name":"DBC","enabled":true}}`))
	}))

	submitter, err := client.GetSubmitter(context.Background(), 870970)
	require.NoError(t, err)
	assert.Equal(t, int64(870970), submitter.Content.Number)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
