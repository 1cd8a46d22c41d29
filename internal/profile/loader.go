package profile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/predictor"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Loader reads region profiles from a directory tree laid out as
// <root>/<region>/profile.json plus the rasters and models it names.
type Loader struct {
	root   string
	logger *slog.Logger
}

func NewLoader(root string, logger *slog.Logger) *Loader {
	return &Loader{root: root, logger: logger}
}

// Root is the directory regions are read from.
func (l *Loader) Root() string { return l.root }

// Profile loads and validates one region.
func (l *Loader) Profile(ctx context.Context, region string) (*domain.RegionProfile, error) {
	m, err := ReadManifest(l.root, region)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(l.root, region)
	b := NewBuilder(region)
	for _, s := range m.Sites {
		b.Site(s)
	}

	for k, e := range m.Modes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		basis, err := raster.ReadFile(filepath.Join(dir, e.Basis))
		if err != nil {
			return nil, fmt.Errorf("region %s mode %d basis: %w", region, k, err)
		}
		reg, err := predictor.Load(filepath.Join(dir, e.Regressor))
		if err != nil {
			return nil, fmt.Errorf("region %s mode %d regressor: %w", region, k, err)
		}
		b.Mode(domain.Mode{Site: e.Site, Basis: basis, Regressor: reg, Mean: e.Mean, Std: e.Std})
	}

	var ref domain.Reference
	if m.Reference.AllMean == "" {
		return nil, &domain.Error{Kind: domain.ErrMissingReferenceStats, Region: region, Key: "all_mean"}
	}
	if ref.AllMean, err = raster.ReadFile(filepath.Join(dir, m.Reference.AllMean)); err != nil {
		return nil, fmt.Errorf("region %s all-conditions mean: %w", region, err)
	}
	// Dry-season statistics may be absent; classification reports it.
	if ref.DryMean, err = l.optionalRaster(dir, m.Reference.DryMean); err != nil {
		return nil, fmt.Errorf("region %s dry mean: %w", region, err)
	}
	if ref.DryStd, err = l.optionalRaster(dir, m.Reference.DryStd); err != nil {
		return nil, fmt.Errorf("region %s dry std: %w", region, err)
	}
	b.Reference(ref)

	if m.Threshold != nil && m.Threshold.Model != "" {
		t, err := predictor.Load(filepath.Join(dir, m.Threshold.Model))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("threshold model listed but missing", "region", region, "path", m.Threshold.Model)
		case err != nil:
			return nil, fmt.Errorf("region %s threshold model: %w", region, err)
		default:
			b.Threshold(t, m.Threshold.Inputs)
		}
	}

	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	l.logger.Info("region profile loaded", "region", region, "modes", len(p.Modes),
		"rows", p.Grid.Rows(), "cols", p.Grid.Cols(), "threshold_model", p.Threshold != nil)
	return p, nil
}

func (l *Loader) optionalRaster(dir, name string) (*raster.Raster, error) {
	if name == "" {
		return nil, nil
	}
	r, err := raster.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return r, err
}

// Regions lists the region keys under the root that carry a manifest.
func (l *Loader) Regions() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || !ValidRegionKey(e.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.root, e.Name(), ManifestFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
