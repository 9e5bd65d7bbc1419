package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/macrosim/macrosim/sim/trace"
)

// DefaultPendingSlots is the number of rotating cross-thread buffers per manager.
const DefaultPendingSlots = 4

// Config holds the kernel configuration, loadable from the `kernel:` section
// of a scenario file. Zero values select defaults.
type Config struct {
	Threads      int    `yaml:"threads"`       // worker threads per rank (default 1)
	PendingSlots int    `yaml:"pending_slots"` // rotating cross-thread slots (default 4)
	Queue        string `yaml:"queue"`         // event queue kind, see QueueKinds
	Manager      string `yaml:"manager"`       // run driver kind, see ManagerKinds
	FinalTime    int64  `yaml:"final_time"`    // simulation stop time in ticks; 0 means unbounded
	Trace        string `yaml:"trace"`         // trace level: none | events
}

// LoadConfig reads and parses a YAML kernel configuration file.
// Unknown keys are rejected so that typos do not silently select defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading kernel config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing kernel config: %w", err)
	}
	return &cfg, nil
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Threads == 0 {
		c.Threads = 1
	}
	if c.PendingSlots == 0 {
		c.PendingSlots = DefaultPendingSlots
	}
	if c.FinalTime == 0 {
		c.FinalTime = NoEventsLeft
	}
	return c
}

// Validate checks that all kinds are registered and all values are in range.
func (c Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must be non-negative, got %d", c.Threads)
	}
	if c.PendingSlots < 0 || c.PendingSlots == 1 {
		return fmt.Errorf("pending_slots must be 0 (default) or at least 2, got %d", c.PendingSlots)
	}
	if c.FinalTime < 0 {
		return fmt.Errorf("final_time must be non-negative, got %d", c.FinalTime)
	}
	if _, ok := QueueKinds[c.Queue]; !ok {
		return fmt.Errorf("unknown queue kind %q", c.Queue)
	}
	if _, ok := ManagerKinds[c.Manager]; !ok {
		return fmt.Errorf("unknown manager kind %q", c.Manager)
	}
	if !trace.IsValidTraceLevel(c.Trace) {
		return fmt.Errorf("unknown trace level %q", c.Trace)
	}
	return nil
}
