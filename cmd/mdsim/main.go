package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/san-kum/mdsim/internal/config"
	"github.com/san-kum/mdsim/internal/storage"
	"github.com/san-kum/mdsim/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const catalogFile = "catalog.db"

var (
	env      config.Env
	dataDir  string
	logLevel string
	shutdown = func(context.Context) error { return nil }

	configFile string
	useCatalog bool

	quantity    string
	plotWidth   int
	plotHeight  int
	catalogName string
	limit       int

	numRuns     int
	parallelism int
)

func main() {
	var err error
	env, err = config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:           "mdsim",
		Short:         "molecular dynamics on a data-parallel compute device",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			shutdown, err = telemetry.Setup(cmd.Context(), "mdsim", env.OTelEndpoint)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return shutdown(context.Background())
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", env.DataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env.LogLevel, "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a simulation and store its output",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().Int("snapshot-every", 0, "save a snapshot every n steps (0 keeps the config value)")
	runCmd.Flags().BoolVar(&useCatalog, "catalog", true, "record the run in the sqlite catalog")

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "run a simulation with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&catalogName, "name", "", "only runs with this name (queries the catalog)")
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a scalar of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&quantity, "quantity", "total", "quantity to plot")
	plotCmd.Flags().IntVar(&plotWidth, "width", 70, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 15, "plot height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	renderCmd := &cobra.Command{
		Use:   "render [run_id]",
		Short: "draw a stored snapshot or scalar series as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  renderRun,
	}
	renderCmd.Flags().Int("step", -1, "snapshot step (-1 uses the last one)")
	renderCmd.Flags().String("series", "", "draw this quantity over time instead of a snapshot")
	renderCmd.Flags().StringP("out", "o", "-", "output file")
	renderCmd.Flags().String("theme", "neon", "colour theme")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "averages, error bars and spectra of stored scalars",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringSlice("quantity", nil, "quantities to analyze")
	analyzeCmd.Flags().Int("skip", 0, "reports to discard as equilibration")

	benchCmd := &cobra.Command{
		Use:   "bench [preset]",
		Short: "measure steps per second for several worker counts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  benchPreset,
	}
	benchCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	benchCmd.Flags().Int("steps", 200, "steps per measurement")

	tuneCmd := &cobra.Command{
		Use:   "tune [preset]",
		Short: "search launch configurations for the fastest force evaluation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneLaunch,
	}
	tuneCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	tuneCmd.Flags().Int("workers", 0, "worker count (0 uses every core)")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [preset]",
		Short: "run independent replicas with consecutive seeds",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	addRunFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&numRuns, "runs", 4, "number of replicas")
	ensembleCmd.Flags().IntVar(&parallelism, "parallel", 0, "replicas running at once (0 means all)")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the stages of a scenario file in sequence",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "average a run over a range of one state parameter",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().String("param", "temperature", "parameter to vary (temperature, density, dt, pressure)")
	sweepCmd.Flags().Float64Slice("values", nil, "parameter values")
	sweepCmd.Flags().Int("skip", 0, "reports per run to discard as equilibration")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list the built-in presets",
		RunE:  listPresets,
	}

	configCmd := &cobra.Command{
		Use:   "config [preset]",
		Short: "print a preset as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printConfig,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCmd, renderCmd, analyzeCmd, benchCmd, tuneCmd, ensembleCmd, scenarioCmd, sweepCmd, presetsCmd, configCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().Int("steps", 0, "number of steps")
	cmd.Flags().Int("interval", 0, "steps between reports")
	cmd.Flags().Float64("dt", 0, "time step")
	cmd.Flags().Uint64("seed", 0, "random seed")
	cmd.Flags().String("device", "", "compute device (cpu, serial)")
	cmd.Flags().Int("workers", 0, "worker count (0 uses every core)")
}

// loadConfig resolves the configuration: a config file, a preset or the
// default, then the environment, then flags that were set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	case len(args) > 0:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	default:
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv(env)

	flags := cmd.Flags()
	if flags.Changed("steps") {
		cfg.Run.Steps, _ = flags.GetInt("steps")
	}
	if flags.Changed("interval") {
		cfg.Run.ReportInterval, _ = flags.GetInt("interval")
	}
	if flags.Changed("dt") {
		cfg.Integrator.Dt, _ = flags.GetFloat64("dt")
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		cfg.System.Seed = seed
		cfg.Integrator.Seed = seed
	}
	if flags.Changed("device") {
		cfg.Compute.Device, _ = flags.GetString("device")
	}
	if flags.Changed("workers") {
		cfg.Compute.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("snapshot-every") {
		cfg.Run.SnapshotEvery, _ = flags.GetInt("snapshot-every")
	}
	return cfg, cfg.Validate()
}

func openStore(withCatalog bool) (*storage.Store, func() error, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	if !withCatalog {
		return st, func() error { return nil }, nil
	}
	cat, err := storage.OpenCatalog(filepath.Join(dataDir, catalogFile))
	if err != nil {
		return nil, nil, err
	}
	return st.WithCatalog(cat), cat.Close, nil
}
