package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/particles"
)

var scalarHeader = []string{
	"step", "time", "kinetic", "potential", "total", "temperature", "conf_temperature",
	"pressure", "volume", "virial", "laplacian", "force_sq", "momentum",
	"momentum_x", "momentum_y", "momentum_z", "stress_xy", "rebuilds",
}

// Run is an open run directory. It receives summaries as an observer and
// snapshots as a snapshot sink.
type Run struct {
	store     *Store
	dir       string
	meta      RunMetadata
	file      *os.File
	w         *csv.Writer
	err       error
	rows      int
	snapshots int
}

func newRun(s *Store, dir string, meta RunMetadata) (*Run, error) {
	f, err := os.Create(filepath.Join(dir, scalarsFile))
	if err != nil {
		return nil, err
	}
	r := &Run{store: s, dir: dir, meta: meta, file: f, w: csv.NewWriter(f)}
	if err := r.w.Write(scalarHeader); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Run) ID() string            { return r.meta.ID }
func (r *Run) Dir() string           { return r.dir }
func (r *Run) Metadata() RunMetadata { return r.meta }
func (r *Run) Rows() int             { return r.rows }
func (r *Run) Snapshots() int        { return r.snapshots }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// OnSummary appends one row to the scalar series. Write errors are kept and
// reported by Finish.
func (r *Run) OnSummary(s dynamo.Summary) {
	if r.err != nil {
		return
	}
	row := []string{
		strconv.Itoa(s.Step),
		formatFloat(s.Time),
		formatFloat(s.Kinetic),
		formatFloat(s.Potential),
		formatFloat(s.Total()),
		formatFloat(s.Temperature),
		formatFloat(s.ConfTemperature),
		formatFloat(s.Pressure),
		formatFloat(s.Volume),
		formatFloat(s.Virial),
		formatFloat(s.Laplacian),
		formatFloat(s.ForceSq),
		formatFloat(s.Momentum),
		formatFloat(s.MomentumX),
		formatFloat(s.MomentumY),
		formatFloat(s.MomentumZ),
		formatFloat(s.StressXY),
		strconv.Itoa(s.Rebuilds),
	}
	if err := r.w.Write(row); err != nil {
		r.err = fmt.Errorf("storage: write scalars: %w", err)
		return
	}
	r.rows++
}

func (r *Run) SaveSnapshot(snap particles.Snapshot) error {
	path := filepath.Join(r.dir, snapshotDir, snapshotName(snap.Step))
	if err := WriteSnapshot(path, snap); err != nil {
		return err
	}
	r.snapshots++
	return nil
}

func snapshotName(step int) string { return fmt.Sprintf("step_%09d.json", step) }

// Finish flushes the series and records the final metadata. runErr, if
// any, marks the run as failed.
func (r *Run) Finish(ctx context.Context, metrics map[string]float64, runErr error) error {
	r.w.Flush()
	err := errors.Join(r.err, r.w.Error(), r.file.Close())

	r.meta.Metrics = metrics
	r.meta.Status = "completed"
	if runErr != nil {
		r.meta.Status = "failed"
		r.meta.Error = runErr.Error()
	}
	if werr := writeJSON(filepath.Join(r.dir, metadataFile), r.meta); werr != nil {
		return errors.Join(err, werr)
	}
	if r.store.catalog != nil {
		err = errors.Join(err, r.store.catalog.Record(ctx, r.meta))
	}
	return err
}
