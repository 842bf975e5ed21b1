// Package spatial applies tabular estimators to multi-band raster images.
//
// An estimator fitted on a (samples, features) table can predict every
// pixel of an image whose bands are those features. spatial flattens the
// image into a (pixels, bands) table, runs the estimator, and restores the
// output to image shape. Pixels that were NoData in any band come back as
// NaN, whatever the estimator produced for them.
//
// # Images
//
// Three representations from the raster package are supported, and results
// keep the representation of the input:
//
//   - *raster.Array: a plain (band, y, x) array.
//   - *raster.DataArray: a labeled image. Chunked DataArrays are processed
//     lazily, one chunk at a time, when the result is computed.
//   - *raster.Dataset: one single-band variable per band.
//
// # Quick Start
//
//	est := neighbors.NewKNeighborsRegressor(neighbors.WithNNeighbors(7))
//	if err := est.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//
//	pred, err := spatial.Predict(ctx, img, est, spatial.WithNoData(-32768))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dist, nn, err := spatial.KNeighbors(ctx, img, est)
//
// # NoData
//
// NoData values are taken from, in order: WithNoData; the _FillValue
// attribute of a DataArray; the per-variable _FillValue attributes of a
// Dataset; the dataset-level _FillValue. NaN is always NoData for float
// images.
//
// # Packages
//
//   - raster: image representations and chunked computation
//   - preprocessing: flatten/unflatten with NoData masks, StandardScaler
//   - sklearn/neighbors: KNeighborsRegressor
//   - linear: multi-output LinearRegression
//   - metrics: MSE and R²
//   - datasets: cached example data (SWO ecoplot)
//   - core/model: estimator interfaces and persistence
//   - core/parallel: row-parallel helpers
//   - pkg/errors, pkg/log, pkg/config, pkg/viz: errors, logging,
//     configuration and band plots
package spatial
