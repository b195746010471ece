// Public domain.

package kalprog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tzdwi/Kalkayotl/astrom"
	"github.com/tzdwi/Kalkayotl/block"
	"github.com/tzdwi/Kalkayotl/catalog"
	"github.com/tzdwi/Kalkayotl/model"
	"github.com/tzdwi/Kalkayotl/prior"
)

// Config is the YAML run configuration.
type Config struct {
	// Catalog is the input table, Identifier its unique-id column.
	Catalog    string `yaml:"catalog"`
	Identifier string `yaml:"identifier"`

	Dimension int    `yaml:"dimension"`
	Unit      string `yaml:"unit"`
	RefSystem string `yaml:"reference_system"`

	// ZeroPoint is subtracted from the observed means, one entry per
	// observed coordinate.
	ZeroPoint []float64 `yaml:"zero_point"`

	// IndependentMeasurements skips cross-star spatial correlation;
	// otherwise SpatialCorrelation names the calibration case.
	IndependentMeasurements bool   `yaml:"independent_measurements"`
	SpatialCorrelation      string `yaml:"spatial_correlation"`

	// Output is the directory run artifacts are written into.
	Output string `yaml:"output"`

	Prior        PriorConfig `yaml:"prior"`
	Sampling     Sampling    `yaml:"sampling"`
	Optimization Optim       `yaml:"optimization"`
}

// PriorConfig is the YAML surface of a prior specification.
type PriorConfig struct {
	Family          string    `yaml:"family"`
	Parametrization string    `yaml:"parametrization"`
	Location        []float64 `yaml:"location"`
	Scale           []float64 `yaml:"scale"`
	Weights         []float64 `yaml:"weights"`
	Rt              *float64  `yaml:"rt"`
	Gamma           *float64  `yaml:"gamma"`
	Hyper           Hyper     `yaml:"hyper"`
}

// Hyper is the YAML surface of the hyperparameters.
type Hyper struct {
	Alpha [][2]float64 `yaml:"alpha"`
	Beta  float64      `yaml:"beta"`
	Gamma float64      `yaml:"gamma"`
	Delta []float64    `yaml:"delta"`
	Eta   float64      `yaml:"eta"`
}

// Sampling holds the MCMC controls.
type Sampling struct {
	Chains              int     `yaml:"chains"`
	Cores               int     `yaml:"cores"`
	Tune                int     `yaml:"tune"`
	Draws               int     `yaml:"draws"`
	TargetAccept        float64 `yaml:"target_accept"`
	Seed                uint64  `yaml:"seed"`
	PriorPredictive     bool    `yaml:"prior_predictive"`
	PosteriorPredictive bool    `yaml:"posterior_predictive"`
}

// Optim holds the warm-start optimization controls.
type Optim struct {
	Skip       bool    `yaml:"skip"`
	Trials     int     `yaml:"trials"`
	Iterations int     `yaml:"iterations"`
	Samples    int     `yaml:"samples"`
	Step       float64 `yaml:"step"`
	RelTol     float64 `yaml:"rel_tol"`
	AbsTol     float64 `yaml:"abs_tol"`
	CheckEvery int     `yaml:"check_every"`
}

// LoadConfig reads and validates a YAML run configuration.  Unknown
// keys are configuration errors.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	if c.Catalog == "" {
		return nil, fmt.Errorf("%s: no catalog file named", path)
	}
	if c.Identifier == "" {
		c.Identifier = "source_id"
	}
	if c.Output == "" {
		c.Output = "."
	}
	return &c, nil
}

// PriorSpec converts the YAML prior surface into a validated
// specification.
func (c *Config) PriorSpec() (*prior.Config, error) {
	fam, err := prior.ParseFamily(c.Prior.Family)
	if err != nil {
		return nil, err
	}
	par := prior.Parametrization(c.Prior.Parametrization)
	if par == "" {
		par = prior.Central
	}
	unit := prior.Unit(c.Unit)
	if unit == "" {
		unit = prior.Pc
	}
	pc := &prior.Config{
		Family: fam,
		Dim:    c.Dimension,
		Params: prior.Params{
			Location: c.Prior.Location,
			Scale:    c.Prior.Scale,
			Weights:  c.Prior.Weights,
			Rt:       c.Prior.Rt,
			Gamma:    c.Prior.Gamma,
		},
		Hyper: prior.Hyper{
			Alpha: c.Prior.Hyper.Alpha,
			Beta:  c.Prior.Hyper.Beta,
			Gamma: c.Prior.Hyper.Gamma,
			Delta: c.Prior.Hyper.Delta,
			Eta:   c.Prior.Hyper.Eta,
		},
		Parametrization: par,
		Unit:            unit,
		Ref:             astrom.RefSystem(c.RefSystem),
	}
	return pc, pc.Validate()
}

// BuildModel loads the catalog, persists the identifier list, assembles
// the joint data block and constructs the model.
func (c *Config) BuildModel() (*catalog.Catalog, *model.Model, error) {
	spec, err := c.PriorSpec()
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.ReadFile(c.Catalog, c.Dimension, c.Identifier, c.ZeroPoint)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(c.Output, 0777); err != nil {
		return nil, nil, err
	}
	if err := cat.SaveIdentifiers(c.identifiersPath()); err != nil {
		return nil, nil, err
	}
	opt := block.Options{IndepMeasures: c.IndependentMeasurements}
	if !opt.IndepMeasures {
		opt.CorrCase = astrom.Case(c.SpatialCorrelation)
		if opt.CorrCase == "" {
			opt.CorrCase = astrom.Lindegren2020
		}
	}
	b, err := block.Assemble(cat, opt)
	if err != nil {
		return nil, nil, err
	}
	m, err := model.New(b, spec)
	if err != nil {
		return nil, nil, err
	}
	return cat, m, nil
}

func (c *Config) identifiersPath() string {
	return filepath.Join(c.Output, "Identifiers.csv")
}

func (c *Config) chainsPath() string {
	return filepath.Join(c.Output, "Chains.dat")
}
