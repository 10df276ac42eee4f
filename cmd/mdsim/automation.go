package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/san-kum/mdsim/internal/automation"
	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/spf13/cobra"
)

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}
	base, err := scenario.Base()
	if err != nil {
		return err
	}
	base.ApplyEnv(env)
	scenario.Config = base

	dev, err := compute.NewDevice(base.Compute.Device, base.Compute.Workers)
	if err != nil {
		return err
	}
	defer dev.Cleanup()

	results, err := automation.RunScenario(cmd.Context(), scenario, dev, kernel.NewCache(), func(stage int, s dynamo.Summary) {
		fmt.Printf("[%d] step %8d  T %.4f  P %.4f  E %.6f\n", stage+1, s.Step, s.Temperature, s.Pressure, s.Total())
	})
	for _, r := range results {
		fmt.Printf("stage %s: %s, %d reports, ended at step %d\n", r.Name, r.Integrator, len(r.Summaries), r.Final.Step)
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	param, _ := flags.GetString("param")
	values, _ := flags.GetFloat64Slice("values")
	skip, _ := flags.GetInt("skip")

	dev, err := compute.NewDevice(cfg.Compute.Device, cfg.Compute.Workers)
	if err != nil {
		return err
	}
	defer dev.Cleanup()

	sweep := &automation.ParameterSweep{Param: param, Values: values, Skip: skip}
	results, err := automation.RunSweep(cmd.Context(), sweep, cfg, dev, kernel.NewCache())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tTEMPERATURE\tPOTENTIAL\tPRESSURE\tENERGY RANGE\n", param)
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%.4f\t%.4f\t%.4f\t%.4g\n", r.ParamValue, r.Temperature, r.Potential, r.Pressure, r.MaxEnergy-r.MinEnergy)
	}
	return w.Flush()
}
