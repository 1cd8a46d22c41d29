package elevation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Client implements domain.DEMProvider against an elevation service that
// answers GET {base}/dem?minx=&miny=&maxx=&maxy= with a raster file.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an elevation service client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// Elevation fetches the DEM window covering b.
func (c *Client) Elevation(ctx context.Context, b orb.Bound) (*raster.Raster, error) {
	params := url.Values{
		"minx": {formatCoord(b.Min[0])},
		"miny": {formatCoord(b.Min[1])},
		"maxx": {formatCoord(b.Max[0])},
		"maxy": {formatCoord(b.Max[1])},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/dem?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.DEMDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DEMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("elevation request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		c.metrics.DEMRequests.WithLabelValues("unavailable").Inc()
		return nil, &domain.Error{Kind: domain.ErrDEMUnavailable, Key: boundKey(b)}
	default:
		c.metrics.DEMRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevation service error: status %d: %s", resp.StatusCode, body)
	}

	dem, err := raster.Read(resp.Body)
	if err != nil {
		c.metrics.DEMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode elevation response: %w", err)
	}
	c.metrics.DEMRequests.WithLabelValues("success").Inc()
	c.logger.Debug("elevation window fetched", "bound", boundKey(b), "rows", dem.Rows(), "cols", dem.Cols())
	return dem, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func boundKey(b orb.Bound) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}
