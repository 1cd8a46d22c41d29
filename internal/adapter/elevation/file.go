// Package elevation provides DEM providers for flood depth estimation: a
// local raster file, a remote elevation service, and an LRU cache decorator.
package elevation

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// FileProvider serves windows of one DEM raster held in memory.
type FileProvider struct {
	dem *raster.Raster
}

// NewFileProvider serves windows of dem.
func NewFileProvider(dem *raster.Raster) *FileProvider {
	return &FileProvider{dem: dem}
}

// OpenFile reads the DEM stored at path.
func OpenFile(path string) (*FileProvider, error) {
	dem, err := raster.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open dem: %w", err)
	}
	return NewFileProvider(dem), nil
}

// OpenPermanentWater reads the permanent water raster stored at path. Cells
// that are non-zero are water.
func OpenPermanentWater(path string) (*raster.Mask, error) {
	r, err := raster.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open permanent water: %w", err)
	}
	return raster.MaskFromRaster(r), nil
}

// Bound is the extent the provider covers.
func (p *FileProvider) Bound() orb.Bound { return p.dem.Grid.Bound() }

func (p *FileProvider) Elevation(ctx context.Context, b orb.Bound) (*raster.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	window, ok := p.dem.Crop(b)
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrDEMUnavailable, Key: boundKey(b)}
	}
	return window, nil
}
