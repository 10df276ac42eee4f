package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/san-kum/mdsim/internal/analysis"
	"github.com/san-kum/mdsim/internal/export"
	"github.com/san-kum/mdsim/internal/metrics"
	"github.com/san-kum/mdsim/internal/storage"
	"github.com/san-kum/mdsim/internal/viz"
	"github.com/spf13/cobra"
)

func outputFile(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func renderRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	step, _ := flags.GetInt("step")
	series, _ := flags.GetString("series")
	out, _ := flags.GetString("out")
	themeName, _ := flags.GetString("theme")
	style := export.StyleFor(viz.GetTheme(themeName))

	f, err := outputFile(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if series != "" {
		summaries, err := st.LoadScalars(id)
		if err != nil {
			return err
		}
		return export.SeriesToSVG(f, summaries, series, 800, 300, style)
	}

	if step < 0 {
		steps, err := st.Snapshots(id)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return fmt.Errorf("run %s has no snapshots", id)
		}
		step = steps[len(steps)-1]
	}
	snap, err := st.LoadSnapshot(id, step)
	if err != nil {
		return err
	}
	return export.SnapshotToSVG(f, snap, viz.NewProjection(), 80, 40, style)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	id, err := st.Resolve(args[0])
	if err != nil {
		return err
	}
	summaries, err := st.LoadScalars(id)
	if err != nil {
		return err
	}
	if len(summaries) < 2 {
		return fmt.Errorf("run %s has %d reports, need at least 2", id, len(summaries))
	}
	skip, _ := cmd.Flags().GetInt("skip")
	if skip < 0 || skip >= len(summaries)-1 {
		return fmt.Errorf("--skip %d leaves fewer than 2 reports", skip)
	}
	summaries = summaries[skip:]
	dt := (summaries[len(summaries)-1].Time - summaries[0].Time) / float64(len(summaries)-1)

	names, _ := cmd.Flags().GetStringSlice("quantity")
	if len(names) == 0 {
		names = []string{"total", "potential", "temperature", "pressure"}
	}
	fmt.Printf("run: %s, %s reports from step %s\n\n", id, humanize.Comma(int64(len(summaries))), humanize.Comma(int64(summaries[0].Step)))
	fmt.Printf("%-12s %14s %12s %12s %8s %10s\n", "quantity", "mean", "stddev", "stderr", "g", "peak freq")
	for _, name := range names {
		q, err := metrics.Lookup(name)
		if err != nil {
			return err
		}
		values := make([]float64, len(summaries))
		for i, s := range summaries {
			values[i] = q(s)
		}
		r, err := analysis.Analyze(values, dt)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("%-12s %14.6f %12.6f %12.6f %8.2f %10.4f\n", name, r.Mean, r.StdDev, r.StdErr, r.Inefficiency, r.PeakFrequency)
	}
	return nil
}
