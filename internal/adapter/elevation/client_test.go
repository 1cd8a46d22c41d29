package elevation

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

const headerContentType = "Content-Type"

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

var testBound = orb.Bound{Min: orb.Point{500000, 1399000}, Max: orb.Point{500960.5, 1400000}}

func testDEM() *raster.Raster {
	return raster.Filled(raster.NewGrid(2, 3, 500015, 1399985, 30, -30, "EPSG:32648"), 4.5)
}

func TestClient_Elevation_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dem", r.URL.Path)
		assert.Equal(t, "500000", r.URL.Query().Get("minx"))
		assert.Equal(t, "1399000", r.URL.Query().Get("miny"))
		assert.Equal(t, "500960.5", r.URL.Query().Get("maxx"))
		assert.Equal(t, "1400000", r.URL.Query().Get("maxy"))

		w.Header().Set(headerContentType, "application/octet-stream")
		require.NoError(t, raster.Write(w, testDEM()))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	dem, err := c.Elevation(context.Background(), testBound)
	require.NoError(t, err)

	assert.True(t, dem.Grid.Equal(testDEM().Grid))
	assert.Equal(t, 4.5, dem.At(1, 2))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.DEMRequests.WithLabelValues("success")))
}

func TestClient_Elevation_NotCovered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.Elevation(context.Background(), testBound)
	require.ErrorIs(t, err, domain.ErrDEMUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.DEMRequests.WithLabelValues("unavailable")))
}

func TestClient_Elevation_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream tile store down`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.Elevation(context.Background(), testBound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.NotErrorIs(t, err, domain.ErrDEMUnavailable)
}

func TestClient_Elevation_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 16))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 5*time.Second)
	_, err := c.Elevation(context.Background(), testBound)
	assert.ErrorIs(t, err, raster.ErrBadFormat)
}

func TestClient_Elevation_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 50*time.Millisecond)
	_, err := c.Elevation(context.Background(), testBound)
	require.Error(t, err)
}
