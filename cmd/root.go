package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/macrosim/macrosim/sim"
	"github.com/macrosim/macrosim/sim/phold"
)

var (
	// Scenario file and logging
	configPath string // Path to a YAML scenario
	logLevel   string // Log verbosity level

	// Kernel
	ranks     int    // In-process ranks
	threads   int    // Worker threads per rank
	finalTime int64  // Simulation stop time (in ticks)
	queueKind string // Event queue implementation
	manager   string // Run driver
	traceMode string // Execution trace level

	// PHOLD model
	seed       int64   // Seed for the per-process random streams
	components int     // Number of logical processes
	tokens     int     // Initial tokens per process
	latency    int64   // Link latency (in ticks)
	meanDelay  float64 // Mean exponential hold time (in ticks)
	remote     float64 // Probability a token leaves its process
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "macrosim",
	Short: "Parallel discrete-event simulation kernel",
}

// runCmd executes a PHOLD scenario
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a PHOLD scenario on the parallel kernel",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		sc, err := resolveScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runScenario(ctx, sc, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file and flag overrides",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		sc, err := resolveScenario(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Fprintf(os.Stdout, "scenario ok: %d rank(s) x %d thread(s), %d processes, lookahead %d ticks\n",
			sc.Ranks, max(sc.Kernel.Threads, 1), sc.PHOLD.Components, sc.PHOLD.Latency)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// resolveScenario loads --config (if any), applies explicitly set flags on
// top and validates the result.
func resolveScenario(cmd *cobra.Command) (Scenario, error) {
	sc := DefaultScenario()
	if configPath != "" {
		loaded, err := LoadScenario(configPath)
		if err != nil {
			return sc, err
		}
		sc = loaded
	}
	applyFlags(cmd, &sc)
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

// applyFlags overrides scenario fields with flags the user actually set.
// Flag defaults never overwrite values from the scenario file.
func applyFlags(cmd *cobra.Command, sc *Scenario) {
	f := cmd.Flags()
	if f.Changed("ranks") {
		sc.Ranks = ranks
	}
	if f.Changed("threads") {
		sc.Kernel.Threads = threads
	}
	if f.Changed("final-time") {
		sc.Kernel.FinalTime = finalTime
	}
	if f.Changed("queue") {
		sc.Kernel.Queue = queueKind
	}
	if f.Changed("manager") {
		sc.Kernel.Manager = manager
	}
	if f.Changed("trace") {
		sc.Kernel.Trace = traceMode
	}
	if f.Changed("seed") {
		sc.PHOLD.Seed = seed
	}
	if f.Changed("components") {
		sc.PHOLD.Components = components
	}
	if f.Changed("tokens") {
		sc.PHOLD.Tokens = tokens
	}
	if f.Changed("latency") {
		sc.PHOLD.Latency = latency
	}
	if f.Changed("mean-delay") {
		sc.PHOLD.MeanDelay = meanDelay
	}
	if f.Changed("remote") {
		sc.PHOLD.Remote = remote
	}
}

// runScenario runs sc and prints its report to out.
func runScenario(ctx context.Context, sc Scenario, out io.Writer) error {
	logrus.Infof("Starting PHOLD: %d processes x %d tokens on %d rank(s) x %d thread(s), latency=%d, final=%d",
		sc.PHOLD.Components, sc.PHOLD.Tokens, sc.Ranks, max(sc.Kernel.Threads, 1), sc.PHOLD.Latency, sc.Kernel.FinalTime)
	start := time.Now()
	res, err := phold.Run(ctx, sc.Kernel, sc.PHOLD, sc.Ranks)
	if err != nil {
		return err
	}
	return printReport(out, buildReport(res, time.Since(start)))
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addScenarioFlags registers the scenario override flags on c.
func addScenarioFlags(c *cobra.Command) {
	def := DefaultScenario()

	c.Flags().StringVar(&configPath, "config", "", "Path to a YAML scenario (kernel: and phold: sections)")
	c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// Kernel
	c.Flags().IntVar(&ranks, "ranks", def.Ranks, "Number of in-process ranks")
	c.Flags().IntVar(&threads, "threads", 1, "Worker threads per rank")
	c.Flags().Int64Var(&finalTime, "final-time", def.Kernel.FinalTime, "Simulation stop time in ticks")
	c.Flags().StringVar(&queueKind, "queue", "heap", "Event queue: "+strings.Join(sim.KindNames(sim.QueueKinds), ", "))
	c.Flags().StringVar(&manager, "manager", "auto", "Run driver: "+strings.Join(sim.KindNames(sim.ManagerKinds), ", "))
	c.Flags().StringVar(&traceMode, "trace", "none", "Execution trace level (none, events)")

	// PHOLD model
	c.Flags().Int64Var(&seed, "seed", def.PHOLD.Seed, "Seed for the per-process random streams")
	c.Flags().IntVar(&components, "components", def.PHOLD.Components, "Number of logical processes")
	c.Flags().IntVar(&tokens, "tokens", def.PHOLD.Tokens, "Initial tokens per process")
	c.Flags().Int64Var(&latency, "latency", def.PHOLD.Latency, "Link latency in ticks; the lookahead of every round")
	c.Flags().Float64Var(&meanDelay, "mean-delay", def.PHOLD.MeanDelay, "Mean exponential hold time in ticks")
	c.Flags().Float64Var(&remote, "remote", def.PHOLD.Remote, "Probability a token is sent to another process")
}

// init sets up CLI flags and subcommands
func init() {
	addScenarioFlags(runCmd)
	addScenarioFlags(validateCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
