// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the shared ingestion HTTP client.

package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","value":42}`))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	defer client.Close()

	var out struct {
		Status string `json:"status"`
		Value  int    `json:"value"`
	}
	err := client.GetJSON(context.Background(), srv.URL,
		map[string]string{"Authorization": "Bearer token-123"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 42, out.Value)
}

func TestGetJSON_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":`))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	defer client.Close()

	var out map[string]any
	err := client.GetJSON(context.Background(), srv.URL, nil, &out)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Zero(t, he.Status)
}

func TestGetText_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	defer client.Close()

	_, err := client.GetText(context.Background(), srv.URL, nil)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.True(t, IsHTTPStatus(err, http.StatusNotFound))
	assert.False(t, IsHTTPStatus(err, http.StatusInternalServerError))
}

func TestGetBytes_TransportFailure(t *testing.T) {
	client := NewClient(500 * time.Millisecond)
	defer client.Close()

	_, err := client.GetBytes(context.Background(), "http://127.0.0.1:1/never", nil)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Zero(t, he.Status)
	assert.Error(t, errors.Unwrap(he))
}

func TestGetBytes_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBytes(ctx, srv.URL, nil)
	require.Error(t, err)
}
