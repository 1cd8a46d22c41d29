package elevation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

func TestFileProvider_CropsWindow(t *testing.T) {
	g := raster.NewGrid(4, 4, 0.5, 3.5, 1, -1, "EPSG:32648")
	dem := raster.New(g)
	for i := range dem.Data {
		dem.Data[i] = float64(i)
	}
	path := filepath.Join(t.TempDir(), "dem.grd")
	require.NoError(t, raster.WriteFile(path, dem))

	p, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.Bound(), p.Bound())

	window, err := p.Elevation(context.Background(), orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 9, 10}, window.Data)
}

func TestFileProvider_OutsideCoverage(t *testing.T) {
	p := NewFileProvider(testDEM())

	_, err := p.Elevation(context.Background(), orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}})
	assert.ErrorIs(t, err, domain.ErrDEMUnavailable)
}

func TestOpenPermanentWater(t *testing.T) {
	g := raster.NewGrid(2, 2, 0.5, 1.5, 1, -1, "EPSG:32648")
	water, err := raster.FromRows(g, [][]float64{{1, 0}, {0, 1}})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "water.grd")
	require.NoError(t, raster.WriteFile(path, water))

	m, err := OpenPermanentWater(path)
	require.NoError(t, err)
	assert.Equal(t, []uint8{raster.Wet, raster.Dry, raster.Dry, raster.Wet}, m.Data)

	_, err = OpenPermanentWater(filepath.Join(t.TempDir(), "nope.grd"))
	assert.Error(t, err)
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.grd"))
	assert.Error(t, err)
}
