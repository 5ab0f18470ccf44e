package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario and policy config without running them",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		setupLogging(v)
		if err := validateScenario(runOptionsFrom(v), os.Stdout); err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
	},
}

func validateScenario(opts runOptions, w io.Writer) error {
	sc, err := loadScenario(opts)
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	for i := range sc.Ues {
		if _, err := sc.Ues[i].BearerConfigs(); err != nil {
			return fmt.Errorf("ue[%d]: %w", i, err)
		}
	}
	_, err = fmt.Fprintf(w, "%s: %d cells, %d UEs, %d flows, %d trajectories, horizon %d ms\n",
		opts.Scenario, len(sc.Cells), len(sc.Ues), len(sc.Workload.Flows), len(sc.Workload.Trajectories), sc.HorizonMs)
	return err
}

func init() {
	validateCmd.Flags().String("scenario", "", "Scenario YAML file")
	validateCmd.Flags().String("policy-config", "", "Policy YAML applied to every cell that leaves a setting unset")
	rootCmd.AddCommand(validateCmd)
}
