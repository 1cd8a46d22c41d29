package predictor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Constant ignores its input. It backs fixed-threshold configurations.
type Constant struct {
	Value float64 `json:"value"`
}

func (c *Constant) Predict([]float64) (float64, error) { return finite(c.Value) }

func (c *Constant) validate() error { return nil }

// Linear is w·x + b.
type Linear struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func (l *Linear) Predict(x []float64) (float64, error) {
	if len(x) != len(l.Coefficients) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(x), len(l.Coefficients))
	}
	return finite(floats.Dot(l.Coefficients, x) + l.Intercept)
}

func (l *Linear) validate() error {
	if len(l.Coefficients) == 0 {
		return errors.New("no coefficients")
	}
	return nil
}

// Polynomial is c0 + c1·x + c2·x² + ... over a single input.
type Polynomial struct {
	Coefficients []float64 `json:"coefficients"`
}

func (p *Polynomial) Predict(x []float64) (float64, error) {
	if len(x) != 1 {
		return 0, fmt.Errorf("%w: got %d, want 1", ErrInputSize, len(x))
	}
	// Horner's scheme.
	v := 0.0
	for i := len(p.Coefficients) - 1; i >= 0; i-- {
		v = v*x[0] + p.Coefficients[i]
	}
	return finite(v)
}

func (p *Polynomial) validate() error {
	if len(p.Coefficients) == 0 {
		return errors.New("no coefficients")
	}
	return nil
}

// Layer is one dense layer: activation(W·x + b). Weights are stored one row
// per output unit.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`

	w *mat.Dense
}

// MLP is a feed-forward network of dense layers; the final layer must have a
// single unit. An MLP must not be copied after first use.
type MLP struct {
	Scaler *Standardizer `json:"scaler,omitempty"`
	Layers []Layer       `json:"layers"`

	once sync.Once
	err  error
}

func (m *MLP) Predict(x []float64) (float64, error) {
	m.once.Do(func() { m.err = m.validate() })
	if m.err != nil {
		return 0, fmt.Errorf("invalid %s model: %w", KindMLP, m.err)
	}
	in, err := m.Scaler.apply(x)
	if err != nil {
		return 0, err
	}
	if _, cols := m.Layers[0].w.Dims(); len(in) != cols {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(in), cols)
	}

	v := mat.NewVecDense(len(in), in)
	for i := range m.Layers {
		l := &m.Layers[i]
		rows, _ := l.w.Dims()
		next := mat.NewVecDense(rows, nil)
		next.MulVec(l.w, v)
		next.AddVec(next, mat.NewVecDense(rows, l.Bias))
		for j := 0; j < rows; j++ {
			next.SetVec(j, activate(l.Activation, next.AtVec(j)))
		}
		v = next
	}
	return finite(v.AtVec(0))
}

func (m *MLP) validate() error {
	if err := m.Scaler.validate(); err != nil {
		return err
	}
	if len(m.Layers) == 0 {
		return errors.New("no layers")
	}
	prev := -1
	for i := range m.Layers {
		l := &m.Layers[i]
		if len(l.Weights) == 0 || len(l.Weights[0]) == 0 {
			return fmt.Errorf("layer %d: empty weights", i)
		}
		rows, cols := len(l.Weights), len(l.Weights[0])
		if prev >= 0 && cols != prev {
			return fmt.Errorf("layer %d: takes %d inputs, previous layer has %d units", i, cols, prev)
		}
		if len(l.Bias) != rows {
			return fmt.Errorf("layer %d: %d biases for %d units", i, len(l.Bias), rows)
		}
		if !knownActivation(l.Activation) {
			return fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
		data := make([]float64, 0, rows*cols)
		for _, row := range l.Weights {
			if len(row) != cols {
				return fmt.Errorf("layer %d: ragged weights", i)
			}
			data = append(data, row...)
		}
		l.w = mat.NewDense(rows, cols, data)
		prev = rows
	}
	if prev != 1 {
		return fmt.Errorf("output layer has %d units, want 1", prev)
	}
	return nil
}

func knownActivation(name string) bool {
	switch name {
	case "", "linear", "relu", "tanh", "sigmoid":
		return true
	}
	return false
}

func activate(name string, v float64) float64 {
	switch name {
	case "relu":
		return math.Max(0, v)
	case "tanh":
		return math.Tanh(v)
	case "sigmoid":
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}

// SVR is a kernel support-vector regressor:
// Σ dual_i · K(sv_i, x) + intercept.
type SVR struct {
	Kernel         string        `json:"kernel"`
	Gamma          float64       `json:"gamma"`
	SupportVectors [][]float64   `json:"support_vectors"`
	DualCoef       []float64     `json:"dual_coef"`
	Intercept      float64       `json:"intercept"`
	Scaler         *Standardizer `json:"scaler,omitempty"`

	once sync.Once
	err  error
}

func (s *SVR) Predict(x []float64) (float64, error) {
	s.once.Do(func() { s.err = s.validate() })
	if s.err != nil {
		return 0, fmt.Errorf("invalid %s model: %w", KindSVR, s.err)
	}
	in, err := s.Scaler.apply(x)
	if err != nil {
		return 0, err
	}
	if len(in) != len(s.SupportVectors[0]) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(in), len(s.SupportVectors[0]))
	}
	v := s.Intercept
	for i, sv := range s.SupportVectors {
		var k float64
		switch s.Kernel {
		case "linear":
			k = floats.Dot(sv, in)
		default:
			d := floats.Distance(sv, in, 2)
			k = math.Exp(-s.Gamma * d * d)
		}
		v += s.DualCoef[i] * k
	}
	return finite(v)
}

func (s *SVR) validate() error {
	if err := s.Scaler.validate(); err != nil {
		return err
	}
	switch s.Kernel {
	case "", "rbf":
		if s.Gamma <= 0 {
			return errors.New("rbf kernel needs a positive gamma")
		}
	case "linear":
	default:
		return fmt.Errorf("unknown kernel %q", s.Kernel)
	}
	if len(s.SupportVectors) == 0 {
		return errors.New("no support vectors")
	}
	if len(s.SupportVectors) != len(s.DualCoef) {
		return fmt.Errorf("%d support vectors but %d dual coefficients", len(s.SupportVectors), len(s.DualCoef))
	}
	n := len(s.SupportVectors[0])
	for i, sv := range s.SupportVectors {
		if len(sv) != n || n == 0 {
			return fmt.Errorf("support vector %d has %d features, want %d", i, len(sv), n)
		}
	}
	return nil
}
