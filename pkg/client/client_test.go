package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/photostream/cli/pkg/config"
	"github.com/zfogg/photostream/cli/pkg/metrics"
)

const testInstallationID = "0b7f7a54-52a4-4c0f-8a4c-6a3c1f1d2e3f"

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New()
	return New(Options{
		BaseURL:        srv.URL,
		InstallationID: testInstallationID,
		Metrics:        m,
	}), m
}

func TestEveryRequestCarriesInstallationID(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get(HeaderInstallationID))
		mu.Unlock()
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})

	ctx := context.Background()
	_, err := c.Get(ctx, "/stream", nil, "")
	require.NoError(t, err)
	_, err = c.Post(ctx, "/image", map[string]string{"description": "x"})
	require.NoError(t, err)
	_, err = c.Put(ctx, "/image/1/like", nil)
	require.NoError(t, err)
	_, err = c.Delete(ctx, "/image/1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{testInstallationID, testInstallationID, testInstallationID, testInstallationID}, seen)
	assert.Equal(t, testInstallationID, c.InstallationID())
}

func TestGetReturnsBodyAndETag(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("page_size"))
		assert.Empty(t, r.Header.Get(HeaderIfModifiedSince))
		w.Header().Set("ETag", "v1")
		_, _ = io.WriteString(w, `{"page":1}`)
	})

	resp, err := c.Get(context.Background(), "/stream", map[string]string{"page_size": "5"}, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", resp.ETag)
	assert.False(t, resp.NotModified)
	assert.JSONEq(t, `{"page":1}`, string(resp.Body))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "200")))
}

func TestConditionalGetNotModified(t *testing.T) {
	c, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderIfModifiedSince) == "v1" {
			w.Header().Set("ETag", "v1")
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", "v2")
		_, _ = io.WriteString(w, `{}`)
	})

	resp, err := c.Get(context.Background(), "/stream", nil, "v1")
	require.NoError(t, err)
	assert.True(t, resp.NotModified)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "v1", resp.ETag)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "304")))

	resp, err = c.Get(context.Background(), "/stream", nil, "stale")
	require.NoError(t, err)
	assert.False(t, resp.NotModified)
	assert.Equal(t, "v2", resp.ETag)
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json message", http.StatusNotFound, `{"message":"photo not found"}`, "photo not found"},
		{"json error", http.StatusForbidden, `{"error":"not your photo"}`, "not your photo"},
		{"plain body", http.StatusBadRequest, "bad page", "bad page"},
		{"empty body", http.StatusInternalServerError, "", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Delete(context.Background(), "/image/7")
			require.Error(t, err)

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, KindHTTP, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestNotModifiedOnNonGetIsAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})

	_, err := c.Put(context.Background(), "/image/1/like", nil)
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotModified, apiErr.StatusCode)
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := metrics.New()
	c := New(Options{BaseURL: url, Metrics: m, ConnectTimeout: time.Second})

	_, err := c.Get(context.Background(), "/stream", nil, "")
	require.Error(t, err)

	assert.True(t, IsNetwork(err))
	apiErr, _ := AsAPIError(err)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Unwrap())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "error")))
}

func TestPostSendsJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"message":"nice"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":3}`)
	})

	resp, err := c.Post(context.Background(), "/image/1/comment", map[string]string{"message": "nice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestContextCancellation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/stream", nil, "")
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(&APIError{Kind: KindHTTP, StatusCode: 404}))
	assert.True(t, IsForbidden(&APIError{Kind: KindHTTP, StatusCode: 403}))
	assert.True(t, IsServerError(&APIError{Kind: KindHTTP, StatusCode: 503}))
	assert.False(t, IsServerError(&APIError{Kind: KindHTTP, StatusCode: 400}))
	assert.False(t, IsNotFound(assert.AnError))

	assert.Equal(t, "[404] gone", (&APIError{Kind: KindHTTP, StatusCode: 404, Message: "gone"}).Error())
	assert.Equal(t, "network error: refused", (&APIError{Kind: KindNetwork, Message: "refused"}).Error())
}

func TestGetClientSingleton(t *testing.T) {
	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "config.toml")))
	Reset()
	defer Reset()

	c1, err := GetClient()
	require.NoError(t, err)
	c2, err := GetClient()
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.NotEmpty(t, c1.InstallationID())
	assert.Equal(t, "http://localhost:8081", c1.BaseURL())
}
