package ports

import (
	"context"

	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
)

// Fitter estimates a declared model against a frame and produces an
// immutable fitted model. Implementations must validate the spec before
// any fitting computation and surface non-convergence as an error carrying
// whatever diagnostics and partial estimates are available.
type Fitter interface {
	Fit(ctx context.Context, spec model.Spec, data *dataset.Frame) (*model.Fitted, error)
}
