package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("hospital_pk,state\n"))
	}))
	defer srv.Close()

	dl, err := newTestFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	require.NotNil(t, dl)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hospital_pk,state\n", string(body))
	assert.Equal(t, `"v1"`, dl.ETag)
	assert.Equal(t, int64(len(body)), dl.Length)
}

func TestFetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"v1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	dl, err := newTestFetcher().Fetch(context.Background(), srv.URL, `"v1"`)
	require.NoError(t, err)
	assert.Nil(t, dl)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dl, err := newTestFetcher().Fetch(context.Background(), srv.URL, "")
	require.NoError(t, err)
	require.NotNil(t, dl)
	defer dl.Body.Close()
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Timeout: time.Second, MaxRetries: 2})
	_, err := f.Fetch(context.Background(), srv.URL, "")
	assert.Error(t, err)
}

func TestFetchClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL, "")
	assert.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}
