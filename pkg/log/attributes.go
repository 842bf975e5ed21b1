package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "KNeighborsRegressor".
	ModelNameKey = "model.name"

	// OperationKey is the operation being performed ("fit", "predict", "kneighbors").
	OperationKey = "ml.operation"

	// ComponentKey identifies the component that emitted the record.
	ComponentKey = "ml.component"

	// NeighborsKey is the number of neighbors queried.
	NeighborsKey = "ml.n_neighbors"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	TargetsKey  = "data.targets"
	DataTypeKey = "data.type"
)

// Raster context.
const (
	// ImageTypeKey is the image representation ("Array", "DataArray", "Dataset").
	ImageTypeKey = "raster.image_type"
	BandsKey     = "raster.bands"
	HeightKey    = "raster.height"
	WidthKey     = "raster.width"
	PixelsKey    = "raster.pixels"
	// MaskedKey counts pixels covered by the NoData mask.
	MaskedKey = "raster.masked_pixels"
	ChunksKey = "raster.chunks"
	WindowKey = "raster.window"
	// LazyKey is true when the output is deferred until Compute.
	LazyKey = "raster.lazy"
)

// Dataset fetching.
const (
	URLKey      = "fetch.url"
	PathKey     = "fetch.path"
	AttemptKey  = "fetch.attempt"
	CacheHitKey = "fetch.cache_hit"
)

// Performance and errors.
const (
	DurationMsKey = "perf.duration_ms"
	ErrorCodeKey  = "error.code"

	// StacktraceKey carries stack traces extracted from cockroachdb/errors values.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit        = "fit"
	OperationPredict    = "predict"
	OperationKNeighbors = "kneighbors"
	OperationTransform  = "transform"
	OperationScore      = "score"
	OperationFetch      = "fetch"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorInvalidNoData     = "INVALID_NODATA"
	ErrorChecksum          = "CHECKSUM_MISMATCH"
)
