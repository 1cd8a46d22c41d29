package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// RawEvent represents an unprocessed message from the request topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the result topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// FloodRequest asks for one inundation run. Levels are metres keyed by site.
type FloodRequest struct {
	RequestID   string             `json:"request_id"`
	Region      string             `json:"region"`
	Date        string             `json:"date,omitempty"`
	WaterLevels map[string]float64 `json:"water_levels"`
	Depth       bool               `json:"depth,omitempty"`

	// Threshold, when set, replaces the region's learned threshold.
	Threshold *float64 `json:"threshold,omitempty"`
}

// ErrMalformedRequest marks requests that cannot be run at all.
var ErrMalformedRequest = errors.New("malformed request")

// Validate checks the request shape. Site coverage is checked against the
// region profile later.
func (r FloodRequest) Validate() error {
	if r.Region == "" {
		return fmt.Errorf("%w: region is required", ErrMalformedRequest)
	}
	if len(r.WaterLevels) == 0 {
		return fmt.Errorf("%w: water_levels is required", ErrMalformedRequest)
	}
	for site, v := range r.WaterLevels {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: level for site %q is not finite", ErrMalformedRequest, site)
		}
	}
	if r.Threshold != nil && (math.IsNaN(*r.Threshold) || math.IsInf(*r.Threshold, 0)) {
		return fmt.Errorf("%w: threshold is not finite", ErrMalformedRequest)
	}
	if r.Date != "" {
		if _, err := time.Parse(time.DateOnly, r.Date); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrMalformedRequest, r.Date)
		}
	}
	return nil
}

// ParseRequest decodes and validates a request payload. A request without an
// id takes the message key.
func ParseRequest(raw RawEvent) (FloodRequest, error) {
	var req FloodRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return FloodRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if req.RequestID == "" {
		req.RequestID = string(raw.Key)
	}
	if err := req.Validate(); err != nil {
		return FloodRequest{}, err
	}
	return req, nil
}

// RunRasters are the raster products of one run. Depth is nil when depth was
// not requested or the flood extent was empty.
type RunRasters struct {
	Synthetic *raster.Raster
	Anomaly   *raster.Raster
	Mask      *raster.Mask
	Depth     *raster.Raster
}

// FloodResult summarizes a finished run.
type FloodResult struct {
	RequestID       string            `json:"request_id,omitempty"`
	Region          string            `json:"region"`
	Date            string            `json:"date,omitempty"`
	Threshold       float64           `json:"threshold"`
	ThresholdSource string            `json:"threshold_source"`
	WetPixels       int               `json:"wet_pixels"`
	DryPixels       int               `json:"dry_pixels"`
	NotApplicable   int               `json:"not_applicable_pixels"`
	WetFraction     float64           `json:"wet_fraction"`
	Depth           *DepthStats       `json:"depth,omitempty"`
	OutOfRange      []string          `json:"out_of_range_sites,omitempty"`
	Artifacts       map[string]string `json:"artifacts,omitempty"`
	ProcessedAt     time.Time         `json:"processed_at"`
}

// NewResult fills the mask counts of a result and stamps it.
func NewResult(req FloodRequest, c *Classification) FloodResult {
	res := FloodResult{
		RequestID:       req.RequestID,
		Region:          req.Region,
		Date:            req.Date,
		Threshold:       c.Threshold,
		ThresholdSource: c.ThresholdSource,
		ProcessedAt:     clock.Now().UTC(),
	}
	for _, v := range c.Mask.Data {
		switch v {
		case raster.Wet:
			res.WetPixels++
		case raster.Dry:
			res.DryPixels++
		default:
			res.NotApplicable++
		}
	}
	if aoi := res.WetPixels + res.DryPixels; aoi > 0 {
		res.WetFraction = float64(res.WetPixels) / float64(aoi)
	}
	return res
}

// SerializeResult converts a result into an OutputEvent keyed by request id.
func SerializeResult(res FloodResult) (OutputEvent, error) {
	value, err := json.Marshal(res)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("marshal result: %w", err)
	}
	key := res.RequestID
	if key == "" {
		key = res.Region
	}
	return OutputEvent{
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"region":           res.Region,
			"threshold_source": res.ThresholdSource,
			"processed_at":     res.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
