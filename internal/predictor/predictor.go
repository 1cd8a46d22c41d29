// Package predictor evaluates the pre-trained models an inundation region
// ships with: the per-mode temporal-coefficient regressors and the
// water-level-conditioned anomaly threshold model.
//
// Models are stored as JSON documents tagged by "type". Every model satisfies
// Predictor; callers never need to know which kind they hold.
package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Predictor maps an input vector to a scalar.
type Predictor interface {
	Predict(x []float64) (float64, error)
}

// ErrInputSize is returned when a model receives the wrong number of inputs.
var ErrInputSize = errors.New("model input size mismatch")

// Model kinds understood by Decode.
const (
	KindConstant   = "constant"
	KindLinear     = "linear"
	KindPolynomial = "polynomial"
	KindMLP        = "mlp"
	KindSVR        = "svr"
)

// Decode reads one model document.
func Decode(data []byte) (Predictor, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	var (
		p   interface{ validate() error }
		err error
	)
	switch head.Type {
	case KindConstant:
		var m Constant
		err, p = json.Unmarshal(data, &m), &m
	case KindLinear:
		var m Linear
		err, p = json.Unmarshal(data, &m), &m
	case KindPolynomial:
		var m Polynomial
		err, p = json.Unmarshal(data, &m), &m
	case KindMLP:
		var m MLP
		err, p = json.Unmarshal(data, &m), &m
	case KindSVR:
		var m SVR
		err, p = json.Unmarshal(data, &m), &m
	default:
		return nil, fmt.Errorf("decode model: unknown type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s model: %w", head.Type, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s model: %w", head.Type, err)
	}
	return p.(Predictor), nil
}

// Load reads and decodes the model stored at path.
func Load(path string) (Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Encode writes a model document, stamping its type tag.
func Encode(p Predictor) ([]byte, error) {
	var kind string
	switch p.(type) {
	case *Constant:
		kind = KindConstant
	case *Linear:
		kind = KindLinear
	case *Polynomial:
		kind = KindPolynomial
	case *MLP:
		kind = KindMLP
	case *SVR:
		kind = KindSVR
	default:
		return nil, fmt.Errorf("encode model: unsupported %T", p)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(kind)
	return json.MarshalIndent(fields, "", "  ")
}

// Scalar evaluates a single-input model.
func Scalar(p Predictor, v float64) (float64, error) {
	return p.Predict([]float64{v})
}

func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("model produced non-finite value %v", v)
	}
	return v, nil
}

// Standardizer applies (x - mean) / scale per feature before evaluation, the
// way the training pipeline's scaler did.
type Standardizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Standardizer) apply(x []float64) ([]float64, error) {
	if s == nil {
		return x, nil
	}
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d, scaler expects %d", ErrInputSize, len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = (x[i] - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

func (s *Standardizer) validate() error {
	if s == nil {
		return nil
	}
	if len(s.Mean) != len(s.Scale) {
		return errors.New("scaler mean and scale lengths differ")
	}
	for _, v := range s.Scale {
		if v == 0 {
			return errors.New("scaler has a zero scale")
		}
	}
	return nil
}
