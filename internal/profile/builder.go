// Package profile assembles region profiles: a builder that validates a
// complete artifact set, a loader that reads one from a region directory, and
// a cache that loads each region at most once.
package profile

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// ErrInvalidProfile wraps every validation problem found by Build.
var ErrInvalidProfile = errors.New("invalid region profile")

// Builder collects a region's artifacts. Build validates them all at once and
// returns a profile that is never modified afterwards.
type Builder struct {
	p         domain.RegionProfile
	inputsSet bool
}

func NewBuilder(region string) *Builder {
	return &Builder{p: domain.RegionProfile{Region: region}}
}

func (b *Builder) Site(s domain.Site) *Builder {
	b.p.Sites = append(b.p.Sites, s)
	return b
}

func (b *Builder) Mode(m domain.Mode) *Builder {
	b.p.Modes = append(b.p.Modes, m)
	return b
}

func (b *Builder) Reference(ref domain.Reference) *Builder {
	b.p.Reference = ref
	return b
}

// Threshold sets the threshold model and the site order it was trained on.
// A nil inputs slice means mode-binding order.
func (b *Builder) Threshold(p domain.Predictor, inputs []string) *Builder {
	b.p.Threshold = p
	b.p.ThresholdInputs = inputs
	b.inputsSet = inputs != nil
	return b
}

// Build validates the collected artifacts.
func (b *Builder) Build() (*domain.RegionProfile, error) {
	p := b.p
	p.Sites = append([]domain.Site(nil), b.p.Sites...)
	p.Modes = append([]domain.Mode(nil), b.p.Modes...)
	if !b.inputsSet {
		p.ThresholdInputs = bindingOrder(p.Modes)
	} else {
		p.ThresholdInputs = append([]string(nil), b.p.ThresholdInputs...)
	}

	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p.Region == "" {
		fail("region key is empty")
	}
	sites := make(map[string]bool, len(p.Sites))
	for _, s := range p.Sites {
		if s.ID == "" {
			fail("site with empty id")
			continue
		}
		if sites[s.ID] {
			fail("site %q listed twice", s.ID)
		}
		sites[s.ID] = true
		if s.MaxLevel < s.MinLevel {
			fail("site %q: max level %v below min level %v", s.ID, s.MaxLevel, s.MinLevel)
		}
	}

	if len(p.Modes) == 0 {
		fail("no spatial modes")
	}
	var grid *raster.Grid
	checkGrid := func(name string, r *raster.Raster) {
		if r == nil {
			return
		}
		if len(r.Data) != r.Grid.Len() || r.Grid.Len() == 0 {
			fail("%s: %d cells for a %dx%d grid", name, len(r.Data), r.Rows(), r.Cols())
			return
		}
		if grid == nil {
			grid = &r.Grid
			return
		}
		if !grid.Equal(r.Grid) {
			errs = append(errs, fmt.Errorf("%s: %w", name, raster.ErrGridMismatch))
		}
	}
	for k, m := range p.Modes {
		name := fmt.Sprintf("mode %d", k)
		if !sites[m.Site] {
			fail("%s: bound to unknown site %q", name, m.Site)
		}
		if m.Basis == nil {
			fail("%s: no basis raster", name)
		}
		if m.Regressor == nil {
			fail("%s: no regressor", name)
		}
		if math.IsNaN(m.Mean) || math.IsInf(m.Mean, 0) {
			fail("%s: coefficient mean is not finite", name)
		}
		if !(m.Std > 0) || math.IsInf(m.Std, 0) {
			fail("%s: coefficient std must be positive", name)
		}
		checkGrid(name, m.Basis)
	}

	if p.Reference.AllMean == nil {
		fail("all-conditions mean raster missing")
	}
	checkGrid("all_mean", p.Reference.AllMean)
	checkGrid("dry_mean", p.Reference.DryMean)
	checkGrid("dry_std", p.Reference.DryStd)

	if p.Threshold != nil {
		if len(p.ThresholdInputs) == 0 {
			fail("threshold model has no inputs")
		}
		for _, s := range p.ThresholdInputs {
			if !sites[s] {
				fail("threshold input %q is not a site", s)
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidProfile, p.Region, errors.Join(errs...))
	}
	p.Grid = *grid
	return &p, nil
}

// bindingOrder lists the sites driving the modes, first appearance first.
// Each site appears once; threshold models trained on one level per mode
// need their inputs listed explicitly.
func bindingOrder(modes []domain.Mode) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range modes {
		if !seen[m.Site] {
			seen[m.Site] = true
			out = append(out, m.Site)
		}
	}
	return out
}
