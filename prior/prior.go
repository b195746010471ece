// Public domain.

// Package prior declares the closed set of population prior families, their
// parameter and hyperparameter records, and the cross-field validation rules
// that make a configuration usable.  Everything here is checked before any
// expensive computation begins; violations are configuration errors.
package prior

import (
	"fmt"
	"math"

	"github.com/tzdwi/Kalkayotl/astrom"
)

// Family enumerates the population prior families.  The set is closed:
// model construction dispatches over exactly these variants.
type Family int

const (
	Uniform Family = iota // 1D only
	EDSD                  // exponentially decreasing space density, 1D only
	Gaussian
	GMM  // Gaussian mixture
	CGMM // concentric Gaussian mixture, 3D/6D only
	GUM  // Gaussian plus uniform-ball contamination, 3D/6D only
	King
	EFF
)

var familyNames = map[Family]string{
	Uniform:  "Uniform",
	EDSD:     "EDSD",
	Gaussian: "Gaussian",
	GMM:      "GMM",
	CGMM:     "CGMM",
	GUM:      "GUM",
	King:     "King",
	EFF:      "EFF",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily resolves a family name from configuration.
func ParseFamily(s string) (Family, error) {
	for f, name := range familyNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("prior: family %q not recognized", s)
}

// IsMixture reports whether the family assigns stars to components.
func (f Family) IsMixture() bool { return f == GMM || f == CGMM || f == GUM }

// Parametrization selects how per-star latents are declared.
type Parametrization string

const (
	Central    Parametrization = "central"
	NonCentral Parametrization = "non-central"
)

// Unit is the transformation between latent space and observed parallax.
type Unit string

const (
	Pc  Unit = "pc"  // latents in parsecs, parallax = 1000/r
	Mas Unit = "mas" // 1D only: latent is the parallax itself
)

// Params holds the family parameters.  A nil slice or pointer means the
// parameter is inferred, which requires the matching hyperparameter.
type Params struct {
	// Location of the population, length Dim.
	Location []float64

	// Scale semantics are family dependent, see ScaleLen.
	Scale []float64

	// Weights of mixture components; minimum 5% when given explicitly.
	Weights []float64

	// Gamma is the EFF power-law index.
	Gamma *float64

	// Rt is the King tidal radius.
	Rt *float64
}

// Hyper holds the hyperparameters governing hyperpriors of inferred
// parameters.
type Hyper struct {
	// Alpha gives per-dimension (mean, sd) of the Gaussian location
	// hyperprior.
	Alpha [][2]float64

	// Beta is the mean of the Gamma(2, 2/Beta) scale hyperprior.
	Beta float64

	// Gamma governs the shape hyperprior (King rt excess, EFF index
	// excess over its lower bound).
	Gamma float64

	// Delta are Dirichlet concentrations of the mixture weights; its
	// length fixes the number of components when weights are inferred.
	Delta []float64

	// Eta concentrates the population correlation matrix toward the
	// identity (3D/6D).
	Eta float64
}

// Config is a complete prior specification.
type Config struct {
	Family          Family
	Dim             int
	Params          Params
	Hyper           Hyper
	Parametrization Parametrization
	Unit            Unit

	// Ref aligns the latent Cartesian axes with the ICRS or the
	// Galactic frame.  Empty selects ICRS.  1D models ignore it.
	Ref astrom.RefSystem
}

// WeightFloor is the minimum explicit mixture weight.
const WeightFloor = .05

// Components returns the number of mixture components implied by the
// configuration, 1 for non-mixture families.
func (c *Config) Components() int {
	if !c.Family.IsMixture() {
		return 1
	}
	if len(c.Params.Weights) > 0 {
		return len(c.Params.Weights)
	}
	return len(c.Hyper.Delta)
}

// ScaleLen returns the expected length of Params.Scale.
//
// Gaussian: one standard deviation per axis.  Radial families (King, EFF):
// the core radius, plus per-axis velocity deviations at 6D.  GMM: per
// component per axis.  CGMM: one isotropic deviation per component.
// GUM: per-axis deviations of the Gaussian member plus the ball radius of
// the uniform member.
func (c *Config) ScaleLen() int {
	switch c.Family {
	case Uniform, EDSD:
		return 1
	case Gaussian:
		return c.Dim
	case King, EFF:
		if c.Dim == 6 {
			return 4 // core radius + 3 velocity deviations
		}
		return 1
	case GMM:
		return c.Components() * c.Dim
	case CGMM:
		return c.Components()
	case GUM:
		return c.Dim + 1
	}
	return 0
}

// Validate checks every cross-field rule.  The returned error names the
// violated invariant and the responsible input.
func (c *Config) Validate() error {
	switch c.Dim {
	case 1, 3, 6:
	default:
		return fmt.Errorf("prior: dimension %d not valid, must be 1, 3 or 6", c.Dim)
	}
	switch c.Unit {
	case Pc, Mas:
	default:
		return fmt.Errorf("prior: transformation %q not valid, must be pc or mas", c.Unit)
	}
	if c.Dim != 1 && c.Unit != Pc {
		return fmt.Errorf("prior: %dD models work only in pc", c.Dim)
	}
	switch c.Parametrization {
	case Central, NonCentral:
	default:
		return fmt.Errorf("prior: parametrization %q not valid", c.Parametrization)
	}
	if c.Ref != "" && !c.Ref.Valid() {
		return fmt.Errorf("prior: reference system %q not valid, must be ICRS or Galactic", c.Ref)
	}

	switch c.Family {
	case Uniform, EDSD:
		if c.Dim != 1 {
			return fmt.Errorf("prior: %s prior is only valid for the 1D version", c.Family)
		}
		if c.Parametrization != Central {
			return fmt.Errorf("prior: only the central parametrization is valid for %s", c.Family)
		}
		if c.Family == EDSD && c.Unit != Pc {
			return fmt.Errorf("prior: the EDSD prior is a distance prior, transformation must be pc")
		}
	case CGMM, GUM:
		if c.Dim == 1 {
			return fmt.Errorf("prior: %s prior is not valid for the 1D version", c.Family)
		}
	case Gaussian, GMM, EFF, King:
	default:
		return fmt.Errorf("prior: family %v not recognized", c.Family)
	}

	if c.Family.IsMixture() {
		if c.Parametrization != Central {
			return fmt.Errorf("prior: only the central parametrization is valid for %s", c.Family)
		}
		if len(c.Params.Weights) == 0 {
			if len(c.Hyper.Delta) < 2 {
				return fmt.Errorf("prior: hyper delta must be specified with at least two components")
			}
			for i, d := range c.Hyper.Delta {
				if d <= 0 {
					return fmt.Errorf("prior: hyper delta[%d] = %g, must be positive", i, d)
				}
			}
		} else {
			if len(c.Params.Weights) < 2 {
				return fmt.Errorf("prior: mixture needs at least two weights")
			}
			sum := 0.
			for i, w := range c.Params.Weights {
				if w <= WeightFloor {
					return fmt.Errorf("prior: weights[%d] = %g, weights must be greater than 5%%", i, w)
				}
				sum += w
			}
			if math.Abs(sum-1) > 1e-6 {
				return fmt.Errorf("prior: weights sum to %g, must sum to 1", sum)
			}
		}
	}

	if c.Params.Location == nil {
		if len(c.Hyper.Alpha) != c.locLen() {
			return fmt.Errorf("prior: hyper alpha must be specified with %d entries", c.locLen())
		}
		for i, a := range c.Hyper.Alpha {
			if a[1] <= 0 {
				return fmt.Errorf("prior: hyper alpha[%d] sd = %g, must be positive", i, a[1])
			}
		}
	} else if len(c.Params.Location) != c.locLen() {
		return fmt.Errorf("prior: location has %d entries, want %d",
			len(c.Params.Location), c.locLen())
	}

	if c.Params.Scale == nil {
		if c.Hyper.Beta <= 0 {
			return fmt.Errorf("prior: hyper beta must be specified")
		}
	} else {
		if len(c.Params.Scale) != c.ScaleLen() {
			return fmt.Errorf("prior: scale has %d entries, want %d",
				len(c.Params.Scale), c.ScaleLen())
		}
		for i, s := range c.Params.Scale {
			if s <= 0 {
				return fmt.Errorf("prior: scale[%d] = %g, must be positive", i, s)
			}
		}
	}

	if c.Family == King && c.Params.Rt == nil && c.Hyper.Gamma <= 0 {
		return fmt.Errorf("prior: hyper gamma must be specified to infer the King tidal radius")
	}
	if c.Family == King && c.Params.Rt != nil && *c.Params.Rt <= 0 {
		return fmt.Errorf("prior: King rt = %g, must be positive", *c.Params.Rt)
	}
	if c.Family == EFF {
		if c.Params.Gamma == nil && c.Hyper.Gamma <= 0 {
			return fmt.Errorf("prior: hyper gamma must be specified to infer the EFF index")
		}
		if c.Params.Gamma != nil && *c.Params.Gamma <= c.EFFGammaMin() {
			return fmt.Errorf("prior: EFF gamma = %g, must exceed %g at %dD",
				*c.Params.Gamma, c.EFFGammaMin(), c.Dim)
		}
	}

	if c.Dim != 1 && c.Hyper.Eta <= 0 {
		return fmt.Errorf("prior: hyper eta must be specified for %dD models", c.Dim)
	}
	return nil
}

// locLen is the length of the location parameter: one entry per axis,
// per component for the (non-concentric) Gaussian mixture.
func (c *Config) locLen() int {
	if c.Family == GMM {
		return c.Components() * c.Dim
	}
	return c.Dim
}

// LocLen exports locLen for model construction.
func (c *Config) LocLen() int { return c.locLen() }

// EFFGammaMin is the lower bound of the EFF index required for the
// population density to normalize: 1 on the line, 3 in space.
func (c *Config) EFFGammaMin() float64 {
	if c.Dim == 1 {
		return 1
	}
	return 3
}
