package spatial

import (
	"context"
	"time"

	"github.com/YuminosukeSato/scigo-spatial/core/model"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
	"github.com/YuminosukeSato/scigo-spatial/raster"
	"gonum.org/v1/gonum/mat"
)

// Raster is the set of image representations accepted by Predict and
// KNeighbors.
type Raster interface {
	*raster.Array | *raster.DataArray | *raster.Dataset
}

// Predict predicts every pixel of img with a fitted estimator. The result
// has one band per estimator target, labeled by the estimator's target
// names when it has them and "0".."k-1" otherwise, and has the same
// representation as img. Chunked images give a lazy result.
func Predict[T Raster](ctx context.Context, img T, est model.Predictor, opts ...Option) (T, error) {
	var zero T
	c := newConfig(opts)
	wrapped, err := Wrap(img, c.nodata)
	if err != nil {
		return zero, err
	}

	bands, _, _ := wrapped.Shape()
	k, err := nOutputs(est, bands)
	if err != nil {
		return zero, err
	}
	labels := raster.SequentialLabels(k)
	if namer, ok := est.(model.TargetNamer); ok {
		if names := namer.TargetNames(); len(names) == k {
			labels = names
		}
	}

	logger := operationLogger(wrapped, log.OperationPredict)
	start := time.Now()
	outs, err := wrapped.ApplyAcrossBands(ctx, func(_ context.Context, flat *mat.Dense) ([]mat.Matrix, error) {
		pred, err := est.Predict(flat)
		if err != nil {
			return nil, err
		}
		return []mat.Matrix{pred}, nil
	}, append(append([]Option{}, opts...), withoutOutputs(), WithOutput(labels...))...)
	if err != nil {
		logger.Error("predict failed", err)
		return zero, err
	}
	logger.Info("predicted", log.TargetsKey, k, log.DurationMsKey, time.Since(start).Milliseconds())
	return outs[0].(T), nil
}

// KNeighbors finds the nearest training samples of every pixel of img.
// nn holds the neighbor indices and dist their distances, each with one band
// per neighbor labeled "0".."k-1". When distances are disabled with
// WithReturnDistance(false), dist is the zero value.
func KNeighbors[T Raster](ctx context.Context, img T, est model.KNeighborsQuerier, opts ...Option) (dist, nn T, err error) {
	c := newConfig(opts)
	wrapped, err := Wrap(img, c.nodata)
	if err != nil {
		return dist, nn, err
	}

	k := c.nNeighbors
	if k <= 0 {
		k = est.NNeighbors()
	}
	labels := raster.SequentialLabels(k)

	outOpts := append(append([]Option{}, opts...), withoutOutputs())
	if c.returnDistance {
		outOpts = append(outOpts, WithOutput(labels...))
	}
	outOpts = append(outOpts, WithOutput(labels...))

	logger := operationLogger(wrapped, log.OperationKNeighbors)
	start := time.Now()
	outs, err := wrapped.ApplyAcrossBands(ctx, func(_ context.Context, flat *mat.Dense) ([]mat.Matrix, error) {
		d, ind, err := est.KNeighbors(flat, k, c.returnDistance)
		if err != nil {
			return nil, err
		}
		if c.returnDistance {
			return []mat.Matrix{d, ind}, nil
		}
		return []mat.Matrix{ind}, nil
	}, outOpts...)
	if err != nil {
		logger.Error("kneighbors failed", err)
		return dist, nn, err
	}
	logger.Info("neighbors found", log.NeighborsKey, k, log.DurationMsKey, time.Since(start).Milliseconds())

	if c.returnDistance {
		return outs[0].(T), outs[1].(T), nil
	}
	return dist, outs[0].(T), nil
}

// nOutputs returns the number of targets est predicts for bands features,
// asking the estimator when it can tell and probing with one row otherwise.
func nOutputs(est model.Predictor, bands int) (int, error) {
	if oc, ok := est.(model.OutputCounter); ok {
		if n := oc.NOutputs(); n > 0 {
			return n, nil
		}
	}
	pred, err := est.Predict(mat.NewDense(1, bands, nil))
	if err != nil {
		return 0, errors.Wrap(err, "probe estimator outputs")
	}
	_, n := pred.Dims()
	return n, nil
}

func operationLogger(img Image, op string) log.Logger {
	bands, height, width := img.Shape()
	return log.GetLoggerWithName("spatial").With(
		log.OperationKey, op,
		log.ImageTypeKey, img.Kind(),
		log.BandsKey, bands,
		log.HeightKey, height,
		log.WidthKey, width,
		log.LazyKey, img.Chunked(),
	)
}
