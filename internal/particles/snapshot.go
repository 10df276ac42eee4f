package particles

import "github.com/san-kum/mdsim/internal/dynamo"

// Snapshot is the exchange form of a state used by savers and loaders.
type Snapshot struct {
	Step      int        `json:"step"`
	Time      float64    `json:"time"`
	Dim       int        `json:"dim"`
	Box       BoxRecord  `json:"box"`
	Particles []Particle `json:"particles"`
}

type BoxRecord struct {
	Lengths  []float64 `json:"lengths"`
	Periodic []bool    `json:"periodic"`
}

type Particle struct {
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
	Type     int       `json:"type"`
	Mass     float64   `json:"mass"`
	Image    []int32   `json:"image"`
}

func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Step: s.Step,
		Time: s.Time,
		Dim:  s.D,
		Box: BoxRecord{
			Lengths:  s.Box.Lengths(),
			Periodic: s.Box.PeriodicFlags(),
		},
		Particles: make([]Particle, s.N),
	}
	for i := 0; i < s.N; i++ {
		snap.Particles[i] = Particle{
			Position: append([]float64(nil), s.Pos(i)...),
			Velocity: append([]float64(nil), s.Vel(i)...),
			Type:     s.Types[i],
			Mass:     s.Masses[i],
			Image:    append([]int32(nil), s.Image(i)...),
		}
	}
	return snap
}

// FromSnapshot rebuilds a state. Forces are left zero.
func FromSnapshot(snap Snapshot) (*State, error) {
	box, err := NewBox(snap.Box.Lengths, snap.Box.Periodic)
	if err != nil {
		return nil, err
	}
	if snap.Dim != box.Dim() {
		return nil, dynamo.Configf("snapshot", "dimension %d does not match box dimension %d", snap.Dim, box.Dim())
	}
	s := New(len(snap.Particles), box)
	for i, p := range snap.Particles {
		if len(p.Position) != s.D || len(p.Velocity) != s.D {
			return nil, dynamo.Configf("snapshot", "particle %d has wrong dimension", i)
		}
		copy(s.Pos(i), p.Position)
		copy(s.Vel(i), p.Velocity)
		if len(p.Image) == s.D {
			copy(s.Image(i), p.Image)
		}
		s.Types[i] = p.Type
		s.Masses[i] = p.Mass
	}
	s.Step = snap.Step
	s.Time = snap.Time
	s.WrapAll()
	return s, s.Validate()
}

// Restore overwrites s with snap, keeping s's box so that caches holding it
// observe the geometry change through its version.
func (s *State) Restore(snap Snapshot) error {
	r, err := FromSnapshot(snap)
	if err != nil {
		return err
	}
	s.CopyFrom(r)
	return nil
}
