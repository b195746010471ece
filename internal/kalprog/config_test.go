// Public domain.

package kalprog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tzdwi/Kalkayotl/astrom"
	"github.com/tzdwi/Kalkayotl/prior"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kalkayotl.yml")
	if err := os.WriteFile(path, []byte(body), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

const sample = `
catalog: members.csv
dimension: 3
unit: pc
reference_system: Galactic
zero_point: [0, 0, -0.000017]
output: ./out
prior:
  family: Gaussian
  parametrization: central
  hyper:
    alpha: [[250, 30], [120, 30], [-50, 30]]
    beta: 20
    eta: 10
sampling:
  chains: 4
  tune: 2000
  draws: 2000
  seed: 11
optimization:
  trials: 5
`

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if c.Identifier != "source_id" {
		t.Errorf("identifier default %q", c.Identifier)
	}
	if c.Sampling.Chains != 4 || c.Sampling.Seed != 11 {
		t.Errorf("sampling %+v", c.Sampling)
	}
	if c.Optimization.Trials != 5 {
		t.Errorf("optimization %+v", c.Optimization)
	}
	spec, err := c.PriorSpec()
	if err != nil {
		t.Fatal(err)
	}
	if spec.Family != prior.Gaussian || spec.Dim != 3 || spec.Ref != astrom.Galactic {
		t.Errorf("spec %+v", spec)
	}
	if spec.Hyper.Alpha[2][0] != -50 {
		t.Errorf("alpha %v", spec.Hyper.Alpha)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "catalog: x.csv\ntypo_key: 3\n"))
	if err == nil || !strings.Contains(err.Error(), "typo_key") {
		t.Errorf("unknown key accepted: %v", err)
	}
}

func TestLoadConfigRequiresCatalog(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "dimension: 1\n")); err == nil {
		t.Error("config without a catalog accepted")
	}
}

func TestPriorSpecBadFamily(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, "catalog: x.csv\nprior:\n  family: Nope\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = c.PriorSpec(); err == nil {
		t.Error("unknown family accepted")
	}
}
