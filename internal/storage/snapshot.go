package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/particles"
)

func WriteSnapshot(path string, snap particles.Snapshot) error {
	return writeJSON(path, snap)
}

func ReadSnapshot(path string) (particles.Snapshot, error) {
	var snap particles.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("storage: decode snapshot %s: %w", path, err)
	}
	return snap, nil
}

// Snapshots lists the steps with a saved snapshot in ascending order.
func (s *Store) Snapshots(runID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, runID, snapshotDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var steps []int
	for _, e := range entries {
		name := strings.TrimSuffix(strings.TrimPrefix(e.Name(), "step_"), ".json")
		step, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	slices.Sort(steps)
	return steps, nil
}

func (s *Store) LoadSnapshot(runID string, step int) (particles.Snapshot, error) {
	return ReadSnapshot(filepath.Join(s.baseDir, runID, snapshotDir, snapshotName(step)))
}

// LoadScalars reads back the scalar series of a run.
func (s *Store) LoadScalars(runID string) ([]dynamo.Summary, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, scalarsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []dynamo.Summary{}, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	out := make([]dynamo.Summary, 0, len(records)-1)
	for n, rec := range records[1:] {
		p := rowParser{rec: rec, col: col}
		sum := dynamo.Summary{
			Step:            int(p.float("step")),
			Time:            p.float("time"),
			Kinetic:         p.float("kinetic"),
			Potential:       p.float("potential"),
			Temperature:     p.float("temperature"),
			ConfTemperature: p.float("conf_temperature"),
			Pressure:        p.float("pressure"),
			Volume:          p.float("volume"),
			Virial:          p.float("virial"),
			Laplacian:       p.float("laplacian"),
			ForceSq:         p.float("force_sq"),
			Momentum:        p.float("momentum"),
			MomentumX:       p.float("momentum_x"),
			MomentumY:       p.float("momentum_y"),
			MomentumZ:       p.float("momentum_z"),
			StressXY:        p.float("stress_xy"),
			Rebuilds:        int(p.float("rebuilds")),
		}
		if p.err != nil {
			return nil, fmt.Errorf("storage: %s row %d: %w", scalarsFile, n+1, p.err)
		}
		out = append(out, sum)
	}
	return out, nil
}

type rowParser struct {
	rec []string
	col map[string]int
	err error
}

func (p *rowParser) float(name string) float64 {
	i, ok := p.col[name]
	if !ok || i >= len(p.rec) || p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.rec[i], 64)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}
