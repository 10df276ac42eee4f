package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/experiment"
	"github.com/san-kum/mdsim/internal/kernel"
	"github.com/san-kum/mdsim/internal/optim"
	"github.com/san-kum/mdsim/internal/sim"
	"github.com/san-kum/mdsim/internal/storage"
	"github.com/san-kum/mdsim/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

func metricValues(ms []dynamo.Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	dev, err := exp.Device()
	if err != nil {
		return err
	}
	defer dev.Cleanup()

	st, closeStore, err := openStore(useCatalog)
	if err != nil {
		return err
	}
	defer closeStore()

	opts, err := exp.Options(dev, nil)
	if err != nil {
		return err
	}
	launch := opts.Launch
	if launch == (compute.LaunchConfig{}) {
		launch = compute.DefaultLaunch(exp.State.N, dev)
	}

	run, err := st.Create(storage.RunMetadata{
		Name:           cfg.Name,
		Seed:           cfg.System.Seed,
		Particles:      exp.State.N,
		Dim:            exp.State.D,
		Dt:             cfg.Integrator.Dt,
		Steps:          cfg.Run.Steps,
		ReportInterval: cfg.Run.ReportInterval,
		Integrator:     exp.Integrator.Name(),
		Launch:         launch.String(),
	})
	if err != nil {
		return err
	}
	opts.Launch = launch
	opts.Observers = append(opts.Observers, run)
	if a := exp.SnapshotAction(run); a != nil {
		opts.Actions = append(opts.Actions, a)
	}
	s, err := exp.Simulator(opts)
	if err != nil {
		return errors.Join(err, run.Finish(cmd.Context(), nil, err))
	}
	defer s.Close()

	fmt.Printf("running %s: %s particles, %s on %s\n", cfg.Name, humanize.Comma(int64(exp.State.N)), exp.Integrator.Name(), dev.Name())
	start := time.Now()
	var last dynamo.Summary
	var runErr error
	for sum, err := range s.Run(cmd.Context(), cfg.Run.Steps, cfg.Run.ReportInterval) {
		if err != nil {
			runErr = err
			break
		}
		last = sum
		logrus.Debugf("step %d: E/N=%.6f T=%.4f P=%.4f", sum.Step, sum.Total()/float64(exp.State.N), sum.Temperature, sum.Pressure)
	}
	elapsed := time.Since(start)

	values := metricValues(exp.Metrics)
	if err := run.Finish(cmd.Context(), values, runErr); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", run.ID(), runErr)
	}

	fmt.Printf("completed in %v (%s steps/s)\n", elapsed.Round(time.Millisecond), humanize.FormatFloat("#,###.", float64(last.Step)/elapsed.Seconds()))
	fmt.Printf("run id: %s\n", run.ID())
	fmt.Printf("reports: %d, snapshots: %d, rebuilds: %d\n", run.Rows(), run.Snapshots(), last.Rebuilds)
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(values) {
		fmt.Printf("  %s: %.6g\n", name, values[name])
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	dev, err := exp.Device()
	if err != nil {
		return err
	}
	defer dev.Cleanup()
	opts, err := exp.Options(dev, nil)
	if err != nil {
		return err
	}
	s, err := exp.Simulator(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	live := viz.NewLive(cmd.Context(), s, cfg.Name, cfg.Run.Steps, cfg.Run.ReportInterval)
	defer live.Close()
	if _, err := tea.NewProgram(live, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
		return err
	}
	return live.Err()
}

func listRuns(cmd *cobra.Command, args []string) error {
	var runs []storage.RunMetadata
	if catalogName != "" {
		cat, err := storage.OpenCatalog(filepath.Join(dataDir, catalogFile))
		if err != nil {
			return err
		}
		defer cat.Close()
		if runs, err = cat.Query(cmd.Context(), catalogName, limit); err != nil {
			return err
		}
	} else {
		var err error
		if runs, err = storage.New(dataDir).List(); err != nil {
			return err
		}
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tN\tSTEPS\tDT\tINTEGRATOR\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%g\t%s\t%s\n",
			run.ID,
			run.Name,
			humanize.Time(run.Timestamp),
			run.Particles,
			run.Steps,
			run.Dt,
			run.Integrator,
			run.Status,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	meta, err := st.Load(id)
	if err != nil {
		return err
	}
	summaries, err := st.LoadScalars(id)
	if err != nil {
		return err
	}
	chart, err := viz.Plot(summaries, quantity, plotWidth, plotHeight)
	if err != nil {
		return err
	}
	fmt.Printf("run: %s (%s, %s)\n\n", meta.ID, meta.Name, meta.Status)
	fmt.Println(chart)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	return st.Export(os.Stdout, id)
}

func benchPreset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	steps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return err
	}
	counts := []int{1}
	for n := 2; n <= runtime.NumCPU(); n *= 2 {
		counts = append(counts, n)
	}

	fmt.Printf("benchmarking %s, %d steps\n\n", cfg.Name, steps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKERS\tLAUNCH\tTIME\tSTEPS/SEC\tREBUILDS")
	cache := kernel.NewCache()
	for _, n := range counts {
		exp, err := experiment.New(cfg)
		if err != nil {
			return err
		}
		dev := compute.NewCPU(n)
		opts, err := exp.Options(dev, cache)
		if err != nil {
			return err
		}
		s, err := exp.Simulator(opts)
		if err != nil {
			return err
		}

		start := time.Now()
		_, err = sim.Collect(s.Run(cmd.Context(), steps, steps))
		elapsed := time.Since(start)
		rebuilds := s.Rebuilds()
		launch := s.Launch()
		s.Close()
		dev.Cleanup()
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%d\t%s\t%v\t%s\t%d\n",
			n, launch, elapsed.Round(time.Millisecond), humanize.FormatFloat("#,###.", float64(steps)/elapsed.Seconds()), rebuilds)
	}
	return w.Flush()
}

func tuneLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	dev, err := exp.Device()
	if err != nil {
		return err
	}
	defer dev.Cleanup()

	res, err := optim.DefaultGrid().Search(cmd.Context(), dev, exp.State, exp.Specs, cfg.Neighbor.Skin)
	if err != nil {
		return err
	}

	trials := slices.Clone(res.Trials)
	slices.SortFunc(trials, func(a, b optim.Trial) int {
		switch {
		case a.Err != nil && b.Err == nil:
			return 1
		case a.Err == nil && b.Err != nil:
			return -1
		}
		return int(a.Elapsed - b.Elapsed)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LAUNCH\tTIME\tNOTE")
	for _, t := range trials {
		note := ""
		if t.Err != nil {
			note = t.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", t.Launch, t.Elapsed, note)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	best, _ := res.BestTrial()
	fmt.Printf("\nbest on %s: %s (energy spread %.1e)\n", dev.Name(), best.Launch, res.Spread)
	fmt.Printf("compute:\n  particles_per_block: %d\n  threads_per_particle: %d\n  reduction: %s\n",
		best.Launch.ParticlesPerBlock, best.Launch.ThreadsPerParticle, best.Launch.Reduction)
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	probe, err := experiment.New(cfg)
	if err != nil {
		return err
	}
	dev, err := probe.Device()
	if err != nil {
		return err
	}
	defer dev.Cleanup()

	ens := sim.NewEnsemble(experiment.Factory(cfg, dev, kernel.NewCache()), numRuns, cfg.System.Seed)
	if parallelism > 0 {
		ens.SetLimit(parallelism)
	}
	start := time.Now()
	runs, err := ens.Run(cmd.Context(), cfg.Run.Steps, cfg.Run.ReportInterval)
	if err != nil {
		return err
	}

	n := float64(probe.State.N)
	var energies, temps []float64
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tSTEP\tE/N\tT\tP")
	for i, sums := range runs {
		if len(sums) == 0 {
			continue
		}
		last := sums[len(sums)-1]
		energies = append(energies, last.Total()/n)
		temps = append(temps, last.Temperature)
		fmt.Fprintf(w, "%d\t%d\t%.6f\t%.4f\t%.4f\n", cfg.System.Seed+uint64(i), last.Step, last.Total()/n, last.Temperature, last.Pressure)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(energies) > 0 {
		em, es := stat.MeanStdDev(energies, nil)
		tm, ts := stat.MeanStdDev(temps, nil)
		fmt.Printf("\n%d replicas in %v\nE/N = %.6f ± %.6f\nT   = %.4f ± %.4f\n", len(energies), time.Since(start).Round(time.Millisecond), em, es, tm, ts)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tN\tDENSITY\tINTERACTIONS\tSCHEME")
	for _, name := range config.ListPresets() {
		c := config.GetPreset(name)
		kinds := ""
		for i, ic := range c.Interactions {
			if i > 0 {
				kinds += ","
			}
			label := ic.Builtin
			if label == "" {
				label = ic.Name
			}
			kinds += ic.Kind + ":" + label
		}
		fmt.Fprintf(w, "%s\t%d\t%g\t%s\t%s\n", name, c.System.Particles, c.System.Density, kinds, c.Integrator.Scheme)
	}
	return w.Flush()
}

func printConfig(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		if cfg = config.GetPreset(args[0]); cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
