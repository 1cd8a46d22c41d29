package profile

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/predictor"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// DemoOptions shapes a generated demo region.
type DemoOptions struct {
	Region string
	Rows   int
	Cols   int
	Modes  int
	Sites  int
	Seed   int64
	// CellSize is the grid spacing in metres.
	CellSize float64
}

// DefaultDemoOptions is a small region that runs in milliseconds.
func DefaultDemoOptions() DemoOptions {
	return DemoOptions{Region: "demo", Rows: 24, Cols: 32, Modes: 3, Sites: 2, Seed: 42, CellSize: 30}
}

// DemoDEMFile is the elevation raster WriteDemo leaves next to the manifest.
const DemoDEMFile = "dem.grd"

// WriteDemo writes a self-consistent region under root: a river valley
// running down the middle column that darkens (floods) as the first site's
// level rises. The top-left corner lies outside the area of interest.
func WriteDemo(root string, o DemoOptions) (*Manifest, error) {
	if !ValidRegionKey(o.Region) {
		return nil, fmt.Errorf("invalid region key %q", o.Region)
	}
	if o.Rows < 3 || o.Cols < 3 || o.Modes < 1 || o.Sites < 1 {
		return nil, errors.New("demo region needs at least 3x3 cells, one mode and one site")
	}
	if o.CellSize <= 0 {
		o.CellSize = 30
	}
	dir := filepath.Join(root, o.Region)
	rng := rand.New(rand.NewSource(o.Seed))
	g := raster.NewGrid(o.Rows, o.Cols, 500000+o.CellSize/2, 1400000-o.CellSize/2, o.CellSize, -o.CellSize, "EPSG:32648")

	m := &Manifest{Region: o.Region}
	for i := 0; i < o.Sites; i++ {
		m.Sites = append(m.Sites, domain.Site{
			ID:       fmt.Sprintf("site-%d", i+1),
			Name:     fmt.Sprintf("Gauge %d", i+1),
			Lat:      12.6 + 0.1*float64(i),
			Lon:      104.9 + 0.1*float64(i),
			MinLevel: 0,
			MaxLevel: 10,
		})
	}

	centre := float64(o.Cols-1) / 2
	width := math.Max(1, float64(o.Cols)/8)
	for k := 0; k < o.Modes; k++ {
		basis := raster.New(g)
		phase := rng.Float64() * math.Pi
		for row := 0; row < o.Rows; row++ {
			for col := 0; col < o.Cols; col++ {
				var v float64
				if k == 0 {
					d := (float64(col) - centre) / width
					v = -math.Exp(-d * d)
				} else {
					v = 0.1 * math.Sin(phase+float64(row*k)/3) * math.Cos(float64(col)/4)
				}
				basis.Set(row, col, v)
			}
		}
		var reg predictor.Predictor = &predictor.Linear{Coefficients: []float64{0.3}, Intercept: -1.5}
		if k > 0 {
			reg = &predictor.Polynomial{Coefficients: []float64{rng.Float64() - 0.5, 0.05, -0.002}}
		}
		entry := ModeEntry{
			Site:      m.Sites[k%o.Sites].ID,
			Basis:     fmt.Sprintf("modes/mode_%d.grd", k),
			Regressor: fmt.Sprintf("models/mode_%d.json", k),
			Mean:      3,
			Std:       2,
		}
		if err := raster.WriteFile(filepath.Join(dir, entry.Basis), basis); err != nil {
			return nil, err
		}
		if err := writeModel(filepath.Join(dir, entry.Regressor), reg); err != nil {
			return nil, err
		}
		m.Modes = append(m.Modes, entry)
	}

	allMean := raster.New(g)
	dryMean := raster.New(g)
	dryStd := raster.New(g)
	dem := raster.New(g)
	for row := 0; row < o.Rows; row++ {
		for col := 0; col < o.Cols; col++ {
			i := allMean.Index(row, col)
			allMean.Data[i] = -11 + 0.2*(rng.Float64()-0.5)
			dryMean.Data[i] = -9
			dryStd.Data[i] = 1.5
			dem.Data[i] = 2 + 0.5*math.Abs(float64(col)-centre) + 0.01*float64(row)
		}
	}
	dryMean.Set(0, 0, math.NaN())
	dryMean.Set(0, 1, math.NaN())
	m.Reference = ReferenceEntry{
		AllMean: "reference/all_mean.grd",
		DryMean: "reference/dry_mean.grd",
		DryStd:  "reference/dry_std.grd",
	}
	for name, r := range map[string]*raster.Raster{
		m.Reference.AllMean: allMean,
		m.Reference.DryMean: dryMean,
		m.Reference.DryStd:  dryStd,
		DemoDEMFile:         dem,
	} {
		if err := raster.WriteFile(filepath.Join(dir, name), r); err != nil {
			return nil, err
		}
	}

	inputs := make([]string, 0, o.Sites)
	coeffs := make([]float64, 0, o.Sites)
	for _, s := range m.Sites {
		inputs = append(inputs, s.ID)
		coeffs = append(coeffs, 0.01)
	}
	m.Threshold = &ThresholdEntry{Model: "models/threshold.json", Inputs: inputs}
	if err := writeModel(filepath.Join(dir, m.Threshold.Model), &predictor.Linear{Coefficients: coeffs, Intercept: -2.5}); err != nil {
		return nil, err
	}

	if err := WriteManifest(dir, m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeModel(path string, p predictor.Predictor) error {
	data, err := predictor.Encode(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
