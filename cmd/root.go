package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/ran"
	"github.com/ransim/ransim/sim/trace"
)

// EnvPrefix namespaces the environment variables that override flags:
// --policy-config is read from RANSIM_POLICY_CONFIG.
const EnvPrefix = "RANSIM"

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "ransim",
	Short: "Discrete-event simulator for an LTE radio access network",
}

// runCmd executes a scenario using parameters from flags, environment and config file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario to its horizon and print the metrics",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		setupLogging(v)
		if err := runSimulation(runOptionsFrom(v), os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers the command's flags over RANSIM_* environment variables
// over the optional --config file. Flags left at their defaults yield to
// the other sources.
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.InheritedFlags()} {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	return v, nil
}

func setupLogging(v *viper.Viper) {
	level, err := logrus.ParseLevel(v.GetString("log"))
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", v.GetString("log"))
	}
	logrus.SetLevel(level)
}

// runOptions are the resolved settings of the run command. Zero values
// keep what the scenario file says.
type runOptions struct {
	Scenario     string
	PolicyConfig string
	HorizonMs    int64
	Seed         int64
	Trace        string
}

func runOptionsFrom(v *viper.Viper) runOptions {
	return runOptions{
		Scenario:     v.GetString("scenario"),
		PolicyConfig: v.GetString("policy-config"),
		HorizonMs:    v.GetInt64("horizon"),
		Seed:         v.GetInt64("seed"),
		Trace:        v.GetString("trace"),
	}
}

// loadScenario reads the scenario and applies the policy bundle and
// overrides of opts. The result is not validated.
func loadScenario(opts runOptions) (*ran.Scenario, error) {
	if opts.Scenario == "" {
		return nil, fmt.Errorf("--scenario is required")
	}
	sc, err := ran.LoadScenario(opts.Scenario)
	if err != nil {
		return nil, err
	}
	if opts.PolicyConfig != "" {
		bundle, err := sim.LoadPolicyBundle(opts.PolicyConfig)
		if err != nil {
			return nil, err
		}
		if err := bundle.Validate(); err != nil {
			return nil, err
		}
		for i := range sc.Cells {
			bundle.ApplyTo(&sc.Cells[i])
		}
		logrus.Infof("policy config %s applied to %d cells", opts.PolicyConfig, len(sc.Cells))
	}
	if opts.HorizonMs > 0 {
		sc.HorizonMs = opts.HorizonMs
	}
	// a CLI seed replaces both the scenario and the workload seed
	if opts.Seed != 0 {
		sc.Seed = opts.Seed
		sc.Workload.Seed = opts.Seed
	}
	if opts.Trace != "" {
		sc.Trace = opts.Trace
	}
	return sc, nil
}

func runSimulation(opts runOptions, w io.Writer) error {
	sc, err := loadScenario(opts)
	if err != nil {
		return err
	}
	logrus.Infof("Starting simulation of %s: %d cells, %d UEs, horizon=%dms, seed=%d",
		opts.Scenario, len(sc.Cells), len(sc.Ues), sc.HorizonMs, sc.Seed)

	startTime := time.Now()
	res, err := ran.Run(sc)
	if err != nil {
		return err
	}
	logrus.Infof("Simulated %d events in %v", res.Events, time.Since(startTime))

	if err := res.Metrics.Print(w, res.Elapsed); err != nil {
		return err
	}
	if res.Trace != nil {
		return printTraceSummary(w, trace.Summarize(res.Trace))
	}
	return nil
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trace summary: %w", err)
	}
	if _, err := fmt.Fprintf(w, "=== Decision Trace ===\n%s\n", data); err != nil {
		return fmt.Errorf("writing trace summary: %w", err)
	}
	return nil
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML or TOML file with flag values (keys are flag names)")
	rootCmd.PersistentFlags().String("log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().String("scenario", "", "Scenario YAML file")
	runCmd.Flags().String("policy-config", "", "Policy YAML applied to every cell that leaves a setting unset")
	runCmd.Flags().Int64("horizon", 0, "Simulation horizon in ms (0 keeps the scenario's)")
	runCmd.Flags().Int64("seed", 0, "Seed for workload generation (0 keeps the scenario's)")
	runCmd.Flags().String("trace", "", "Decision trace level: none, decisions, all (empty keeps the scenario's)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
