package logstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteJobLogs(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	require.NoError(t, client.DeleteJobLogs(context.Background(), 42))
	assert.Equal(t, "/logentries/jobs/42", path)
}

func TestDeleteJobLogsToleratesMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	assert.NoError(t, client.DeleteJobLogs(context.Background(), 7))
}

func TestDeleteJobLogsReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	assert.Error(t, client.DeleteJobLogs(context.Background(), 7))
}

func TestDisabledClientIsNoop(t *testing.T) {
	assert.NoError(t, NewClient("", time.Second).DeleteJobLogs(context.Background(), 1))
}
