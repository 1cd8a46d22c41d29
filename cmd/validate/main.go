// Command validate checks a region profile directory before it is deployed:
// the manifest, raster grids, site bindings, regressors, reference statistics
// and threshold model, then runs a smoke synthesis and classification.
//
// Usage:
//
//	go run ./cmd/validate -root regions -region demo
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/predictor"
	"github.com/couchcryptid/inundation-service/internal/profile"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Plausible backscatter range in dB for the reference means.
const (
	minBackscatter = -40.0
	maxBackscatter = 10.0
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	root := flag.String("root", "", "region root directory")
	region := flag.String("region", "", "region key")
	flag.Parse()

	if *root == "" || *region == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *root, *region); code != 0 {
		os.Exit(code)
	}
}

// checker holds what earlier phases loaded so later ones can build on it.
type checker struct {
	out      io.Writer
	dir      string
	manifest *profile.Manifest
	grid     *raster.Grid
	rasters  map[string]*raster.Raster
	models   map[string]predictor.Predictor
}

func run(out io.Writer, root, region string) int {
	fmt.Fprintf(out, "=== Region Profile Validation: %s ===\n\n", region)

	m, err := profile.ReadManifest(root, region)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}
	c := &checker{
		out:      out,
		dir:      filepath.Join(root, region),
		manifest: m,
		rasters:  make(map[string]*raster.Raster),
		models:   make(map[string]predictor.Predictor),
	}

	phases := []*phase{
		c.validateManifest(),
		c.validateGrids(),
		c.validateBindings(),
		c.validateRegressors(),
		c.validateReference(),
		c.validateThreshold(),
		validateSmoke(out, root, region, m),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Sites: %d, modes: %d, threshold model: %t\n",
		len(m.Sites), len(m.Modes), m.Threshold != nil)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func (c *checker) validateManifest() *phase {
	p := &phase{name: "Manifest"}
	if c.manifest.Region != "" && c.manifest.Region != filepath.Base(c.dir) {
		p.errorf("manifest region %q does not match directory %q", c.manifest.Region, filepath.Base(c.dir))
	}
	if len(c.manifest.Sites) == 0 {
		p.errorf("no sites")
	}
	if len(c.manifest.Modes) == 0 {
		p.errorf("no modes")
	}
	seen := make(map[string]bool)
	for _, s := range c.manifest.Sites {
		if s.ID == "" {
			p.errorf("site with empty id")
		}
		if seen[s.ID] {
			p.errorf("duplicate site %q", s.ID)
		}
		seen[s.ID] = true
		if s.MaxLevel < s.MinLevel {
			p.errorf("site %q: max level %g below min level %g", s.ID, s.MaxLevel, s.MinLevel)
		}
	}
	for _, rel := range c.files() {
		if _, err := os.Stat(filepath.Join(c.dir, rel)); err != nil {
			p.errorf("missing file %s", rel)
		}
	}
	return p
}

func (c *checker) validateGrids() *phase {
	p := &phase{name: "Raster grids"}
	var first string
	for _, rel := range c.rasterFiles() {
		r, err := raster.ReadFile(filepath.Join(c.dir, rel))
		if err != nil {
			p.errorf("read %s: %v", rel, err)
			continue
		}
		c.rasters[rel] = r
		if c.grid == nil {
			g := r.Grid
			c.grid, first = &g, rel
			continue
		}
		if !r.Grid.Equal(*c.grid) {
			p.errorf("%s: grid %dx%d differs from %s (%dx%d)", rel, r.Rows(), r.Cols(), first, c.grid.Rows(), c.grid.Cols())
		}
	}
	return p
}

func (c *checker) validateBindings() *phase {
	p := &phase{name: "Mode-site bindings"}
	bound := make(map[string]int)
	for k, mode := range c.manifest.Modes {
		if !c.hasSite(mode.Site) {
			p.errorf("mode %d: unknown site %q", k, mode.Site)
			continue
		}
		bound[mode.Site]++
		if mode.Std <= 0 || math.IsNaN(mode.Std) {
			p.errorf("mode %d: std %g must be positive", k, mode.Std)
		}
		if math.IsNaN(mode.Mean) || math.IsInf(mode.Mean, 0) {
			p.errorf("mode %d: mean is not finite", k)
		}
	}
	for _, s := range c.manifest.Sites {
		if bound[s.ID] == 0 && !c.thresholdInput(s.ID) {
			p.errorf("site %q drives no mode and no threshold input", s.ID)
		}
	}
	return p
}

func (c *checker) validateRegressors() *phase {
	p := &phase{name: "Regressors"}
	for k, mode := range c.manifest.Modes {
		model, err := predictor.Load(filepath.Join(c.dir, mode.Regressor))
		if err != nil {
			p.errorf("mode %d: %v", k, err)
			continue
		}
		c.models[mode.Regressor] = model
		site, ok := c.site(mode.Site)
		if !ok {
			continue
		}
		for _, level := range sampleLevels(site) {
			if _, err := model.Predict([]float64{level}); err != nil {
				p.errorf("mode %d at level %g: %v", k, level, err)
			}
		}
	}
	return p
}

func (c *checker) validateReference() *phase {
	p := &phase{name: "Reference statistics"}
	ref := c.manifest.Reference
	if all := c.rasters[ref.AllMean]; all != nil {
		checkMeanRange(p, ref.AllMean, all)
	}
	if dry := c.rasters[ref.DryMean]; dry != nil {
		checkMeanRange(p, ref.DryMean, dry)
	}
	if sd := c.rasters[ref.DryStd]; sd != nil {
		vals := sd.ValidValues()
		for _, v := range vals {
			if v < 0 {
				p.errorf("%s: negative standard deviation %g", ref.DryStd, v)
				break
			}
		}
		if len(vals) > 0 {
			fmt.Fprintf(c.out, "  %s: mean %.3f, sd %.3f over %d cells\n", ref.DryStd, stat.Mean(vals, nil), stat.StdDev(vals, nil), len(vals))
		}
	}
	return p
}

func checkMeanRange(p *phase, name string, r *raster.Raster) {
	vals := r.ValidValues()
	if len(vals) == 0 {
		p.errorf("%s: no defined cells", name)
		return
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo < minBackscatter || hi > maxBackscatter {
		p.errorf("%s: values [%.2f, %.2f] dB outside plausible range [%g, %g]", name, lo, hi, minBackscatter, maxBackscatter)
	}
}

func (c *checker) validateThreshold() *phase {
	p := &phase{name: "Threshold model"}
	t := c.manifest.Threshold
	if t == nil {
		p.errorf("no threshold model: runs need THRESHOLD_FALLBACK_ENABLED or a caller threshold")
		return p
	}
	model, err := predictor.Load(filepath.Join(c.dir, t.Model))
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	inputs := t.Inputs
	if len(inputs) == 0 {
		for _, m := range c.manifest.Modes {
			if !contains(inputs, m.Site) {
				inputs = append(inputs, m.Site)
			}
		}
	}
	x := make([]float64, 0, len(inputs))
	for _, id := range inputs {
		site, ok := c.site(id)
		if !ok {
			p.errorf("threshold input %q is not a site", id)
			continue
		}
		x = append(x, midLevel(site))
	}
	if len(x) != len(inputs) {
		return p
	}
	if _, err := model.Predict(x); err != nil {
		p.errorf("predict at mid-range levels: %v", err)
	}
	return p
}

func validateSmoke(out io.Writer, root, region string, m *profile.Manifest) *phase {
	p := &phase{name: "Smoke synthesis"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prof, err := profile.NewLoader(root, logger).Profile(context.Background(), region)
	if err != nil {
		p.errorf("load profile: %v", err)
		return p
	}
	levels := make(map[string]float64, len(m.Sites))
	for _, s := range m.Sites {
		levels[s.ID] = midLevel(s)
	}
	syn, err := domain.Synthesize(prof, levels)
	if err != nil {
		p.errorf("synthesize: %v", err)
		return p
	}
	if prof.Reference.DryMean != nil {
		for i, v := range syn.Data {
			if !math.IsNaN(prof.Reference.DryMean.Data[i]) && (math.IsNaN(v) || math.IsInf(v, 0)) {
				p.errorf("synthetic value undefined inside the area of interest at cell %d", i)
				break
			}
		}
	}
	if prof.Threshold == nil {
		return p
	}
	c, err := domain.Classify(prof, syn, levels)
	if err != nil {
		p.errorf("classify: %v", err)
		return p
	}
	fmt.Fprintf(out, "  smoke run at mid-range levels: threshold %.3f, %d wet, %d dry, %d not applicable\n",
		c.Threshold, c.Mask.Count(raster.Wet), c.Mask.Count(raster.Dry), c.Mask.Count(raster.NotApplicable))
	return p
}

// ── Helpers ──

func (c *checker) rasterFiles() []string {
	files := make([]string, 0, len(c.manifest.Modes)+3)
	for _, m := range c.manifest.Modes {
		files = append(files, m.Basis)
	}
	ref := c.manifest.Reference
	for _, f := range []string{ref.AllMean, ref.DryMean, ref.DryStd} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

func (c *checker) files() []string {
	files := c.rasterFiles()
	for _, m := range c.manifest.Modes {
		files = append(files, m.Regressor)
	}
	if t := c.manifest.Threshold; t != nil {
		files = append(files, t.Model)
	}
	return files
}

func (c *checker) site(id string) (domain.Site, bool) {
	for _, s := range c.manifest.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Site{}, false
}

func (c *checker) hasSite(id string) bool {
	_, ok := c.site(id)
	return ok
}

func (c *checker) thresholdInput(id string) bool {
	return c.manifest.Threshold != nil && contains(c.manifest.Threshold.Inputs, id)
}

func sampleLevels(s domain.Site) []float64 {
	if s.MinLevel == s.MaxLevel {
		return []float64{s.MinLevel}
	}
	return []float64{s.MinLevel, midLevel(s), s.MaxLevel}
}

func midLevel(s domain.Site) float64 {
	return (s.MinLevel + s.MaxLevel) / 2
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
