package dataset

import (
	"fmt"

	"github.com/derekpowell/cava-rep/domain/core"
)

// Rescale maps bounded scores onto the open interval (0,1) so a beta-family
// model can accept them, using the shrink transform
//
//	y = ((x-lower)/(upper-lower)*(N-1) + 0.5) / N
//
// with N the length of values. The transform is monotone and deterministic;
// it consumes no randomness. Values outside [lower,upper] are rejected
// before transforming, since they would land outside (0,1) and poison a
// downstream beta fit.
//
// N is a property of the dataset being rescaled: rescaling a different
// subset of the same raw scores yields different outputs. Callers that need
// to reproduce a transform computed on another subset must use RescaleWithN.
func Rescale(values []float64, bounds ScaleBounds) ([]float64, error) {
	return RescaleWithN(values, bounds, len(values))
}

// RescaleWithN applies the shrink transform with an explicit N. The original
// analysis computed N sometimes from the pooled pretest+posttest set and
// sometimes from a single phase; this variant exists so both behaviors can
// be reproduced deliberately rather than by accident.
func RescaleWithN(values []float64, bounds ScaleBounds, n int) ([]float64, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: nothing to rescale", core.ErrEmptyData)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: rescale N must be >= 1, got %d", core.ErrInvalidSpec, n)
	}

	span := bounds.Upper - bounds.Lower
	nf := float64(n)

	out := make([]float64, len(values))
	for i, x := range values {
		if !bounds.Contains(x) {
			return nil, core.NewOutOfRangeError("response", x, bounds.Lower, bounds.Upper)
		}
		unit := (x - bounds.Lower) / span
		out[i] = (unit*(nf-1) + 0.5) / nf
	}
	return out, nil
}
