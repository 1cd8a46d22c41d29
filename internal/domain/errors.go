package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; use errors.As with *Error to get the
// region and key that caused the failure.
var (
	ErrInvalidRegion             = errors.New("invalid region")
	ErrMissingSiteLevel          = errors.New("missing site water level")
	ErrMissingReferenceStats     = errors.New("missing reference statistics")
	ErrThresholdModelUnavailable = errors.New("threshold model unavailable")
	ErrEmptyFloodExtent          = errors.New("empty flood extent")
	ErrDEMUnavailable            = errors.New("dem unavailable")
	ErrUndefinedInterpolation    = errors.New("undefined interpolation")
)

// Error carries the context a caller needs to correct and retry a request.
type Error struct {
	Kind   error
	Region string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Region != "" {
		msg += fmt.Sprintf(" (region %q", e.Region)
		if e.Key != "" {
			msg += fmt.Sprintf(", %q", e.Key)
		}
		msg += ")"
	} else if e.Key != "" {
		msg += fmt.Sprintf(" (%q)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, region, key string) *Error {
	return &Error{Kind: kind, Region: region, Key: key}
}

var kindLabels = []struct {
	err   error
	label string
}{
	{ErrInvalidRegion, "invalid_region"},
	{ErrMissingSiteLevel, "missing_site_level"},
	{ErrMissingReferenceStats, "missing_reference_stats"},
	{ErrThresholdModelUnavailable, "threshold_model_unavailable"},
	{ErrEmptyFloodExtent, "empty_flood_extent"},
	{ErrDEMUnavailable, "dem_unavailable"},
	{ErrUndefinedInterpolation, "undefined_interpolation"},
	{ErrMalformedRequest, "malformed_request"},
}

// ErrorKind returns a stable label for err, used in metrics and result
// summaries. Errors outside the taxonomy are "internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindLabels {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "internal"
}
