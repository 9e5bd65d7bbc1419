package phold

import "fmt"

// Config describes a PHOLD model. It is the `phold:` section of a scenario.
type Config struct {
	Components int     `yaml:"components"`  // number of logical processes
	Tokens     int     `yaml:"tokens"`      // tokens each process starts with
	Latency    int64   `yaml:"latency"`     // latency of every link, in ticks
	MeanDelay  float64 `yaml:"mean_delay"`  // mean of the exponential hold time
	Remote     float64 `yaml:"remote"`      // probability a token leaves its process
	Seed       int64   `yaml:"seed"`
}

// DefaultConfig returns a small model that exercises every link variant
// once partitioned over more than one worker.
func DefaultConfig() Config {
	return Config{
		Components: 16,
		Tokens:     4,
		Latency:    10,
		MeanDelay:  20,
		Remote:     0.5,
		Seed:       42,
	}
}

// Validate checks that the model can be built.
func (c Config) Validate() error {
	if c.Components < 1 {
		return fmt.Errorf("phold: components must be >= 1, got %d", c.Components)
	}
	if c.Tokens < 0 {
		return fmt.Errorf("phold: tokens must be >= 0, got %d", c.Tokens)
	}
	if c.Latency < 1 {
		return fmt.Errorf("phold: latency must be >= 1, got %d", c.Latency)
	}
	if c.MeanDelay < 0 {
		return fmt.Errorf("phold: mean_delay must be >= 0, got %g", c.MeanDelay)
	}
	if c.Remote < 0 || c.Remote > 1 {
		return fmt.Errorf("phold: remote must be in [0,1], got %g", c.Remote)
	}
	return nil
}
