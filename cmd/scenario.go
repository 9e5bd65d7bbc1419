package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/macrosim/macrosim/sim"
	"github.com/macrosim/macrosim/sim/phold"
)

// Scenario is the full content of a scenario file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Ranks  int          `yaml:"ranks"` // in-process ranks (default 1)
	Kernel sim.Config   `yaml:"kernel"`
	PHOLD  phold.Config `yaml:"phold"`
}

// DefaultFinalTime bounds PHOLD runs that do not set kernel.final_time.
const DefaultFinalTime int64 = 100_000

// DefaultScenario is used when no --config file is given.
func DefaultScenario() Scenario {
	return Scenario{
		Ranks:  1,
		Kernel: sim.Config{FinalTime: DefaultFinalTime},
		PHOLD:  phold.DefaultConfig(),
	}
}

// LoadScenario parses a scenario file on top of DefaultScenario, so a file
// only has to name what it changes.
func LoadScenario(path string) (Scenario, error) {
	sc := DefaultScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("reading scenario: %w", err)
	}
	// Parse YAML with strict field checking: typos must cause errors
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return sc, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return sc, nil
}

// Validate checks every section of the scenario.
func (sc Scenario) Validate() error {
	if sc.Ranks < 1 {
		return fmt.Errorf("ranks must be >= 1, got %d", sc.Ranks)
	}
	if err := sc.Kernel.Validate(); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	if err := sc.PHOLD.Validate(); err != nil {
		return err
	}
	if sc.Kernel.FinalTime == 0 && sc.PHOLD.Tokens > 0 {
		return fmt.Errorf("kernel: final_time is required, PHOLD tokens circulate forever")
	}
	if sc.Kernel.Manager == "serial" && (sc.Ranks > 1 || sc.Kernel.Threads > 1) {
		return fmt.Errorf("kernel: serial manager needs 1 rank and 1 thread, got %d x %d", sc.Ranks, sc.Kernel.Threads)
	}
	return nil
}
