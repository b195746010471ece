// Public domain.

// Package sampler holds the posterior sampling machinery: a mean-field
// variational optimizer used as a warm start and an adaptive Hamiltonian
// Monte Carlo sampler.  Both work on any differentiable unnormalized log
// density.
package sampler

// A Target is an unnormalized log density with gradient over an
// unconstrained vector.  Implementations must be safe for concurrent use;
// chains evaluate the same Target from separate goroutines.
type Target interface {
	Dim() int
	LogDensity(x []float64) float64
	// Gradient stores the gradient at x into dst and returns the log
	// density.  A non-finite density comes with a zero gradient.
	Gradient(dst, x []float64) float64
}
