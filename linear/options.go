package linear

import "slices"

// Option configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept (default true)
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithTol sets the singular value threshold used to compute the rank of X
func WithTol(tol float64) Option {
	return func(lr *LinearRegression) {
		lr.Tol = tol
	}
}

// WithTargetNames names the target columns. Predicted images use the names
// as band labels.
func WithTargetNames(names ...string) Option {
	return func(lr *LinearRegression) {
		lr.Targets = slices.Clone(names)
	}
}
