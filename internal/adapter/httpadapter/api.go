package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/inundation-service/internal/domain"
)

const maxRequestBody = 1 << 20

// Runner executes one flood request synchronously.
type Runner interface {
	Run(ctx context.Context, req domain.FloodRequest) (domain.FloodResult, error)
}

// Regions resolves and reloads region profiles.
type Regions interface {
	Profile(ctx context.Context, region string) (*domain.RegionProfile, error)
	Reload(ctx context.Context, region string) (*domain.RegionProfile, error)
}

// API serves the /v1 routes.
type API struct {
	runner     Runner
	regions    Regions
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewAPI creates the run and region handlers. runTimeout sizes the server's
// write deadline so synchronous runs can complete.
func NewAPI(runner Runner, regions Regions, runTimeout time.Duration, logger *slog.Logger) *API {
	return &API{runner: runner, regions: regions, runTimeout: runTimeout, logger: logger}
}

func (a *API) writeTimeout() time.Duration {
	return a.runTimeout + 10*time.Second
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/inundation", a.handleRun)
	mux.HandleFunc("GET /v1/regions/{region}", a.handleRegion)
	mux.HandleFunc("POST /v1/regions/{region}/reload", a.handleReload)
}

func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	var req domain.FloodRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err))
		return
	}
	res, err := a.runner.Run(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

// RegionInfo describes a loaded region profile.
type RegionInfo struct {
	Region          string        `json:"region"`
	Rows            int           `json:"rows"`
	Cols            int           `json:"cols"`
	CRS             string        `json:"crs,omitempty"`
	Bound           [4]float64    `json:"bound"`
	Modes           int           `json:"modes"`
	Sites           []domain.Site `json:"sites"`
	ThresholdModel  bool          `json:"threshold_model"`
	ThresholdInputs []string      `json:"threshold_inputs,omitempty"`
}

func newRegionInfo(p *domain.RegionProfile) RegionInfo {
	b := p.Grid.Bound()
	return RegionInfo{
		Region:          p.Region,
		Rows:            p.Grid.Rows(),
		Cols:            p.Grid.Cols(),
		CRS:             p.Grid.CRS,
		Bound:           [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()},
		Modes:           len(p.Modes),
		Sites:           p.Sites,
		ThresholdModel:  p.Threshold != nil,
		ThresholdInputs: p.ThresholdInputs,
	}
}

func (a *API) handleRegion(w http.ResponseWriter, r *http.Request) {
	p, err := a.regions.Profile(r.Context(), r.PathValue("region"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newRegionInfo(p))
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	region := r.PathValue("region")
	p, err := a.regions.Reload(r.Context(), region)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.logger.Info("region profile reloaded", "region", region)
	sharedobs.WriteJSON(w, http.StatusOK, newRegionInfo(p))
}

// errorBody is the JSON error response.
type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Region string `json:"region,omitempty"`
	Key    string `json:"key,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Kind: domain.ErrorKind(err)}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Region, body.Key = de.Region, de.Key
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	sharedobs.WriteJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidRegion):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.ErrorKind(err) != "internal":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
