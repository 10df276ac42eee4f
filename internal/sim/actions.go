package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/mdsim/internal/particles"
)

// MomentumReset removes the centre-of-mass velocity every Every steps.
type MomentumReset struct {
	Every int
}

func (m MomentumReset) Name() string { return "momentum-reset" }

func (m MomentumReset) AfterStep(_ context.Context, s *Simulator) error {
	if m.Every <= 0 || s.state.Step%m.Every != 0 {
		return nil
	}
	particles.ResetMomentum(s.state)
	return nil
}

// SnapshotSink stores configurations handed out by SnapshotSaver.
type SnapshotSink interface {
	SaveSnapshot(snap particles.Snapshot) error
}

type SnapshotSinkFunc func(snap particles.Snapshot) error

func (f SnapshotSinkFunc) SaveSnapshot(snap particles.Snapshot) error { return f(snap) }

// SnapshotSaver passes a snapshot of the state to Sink every Every steps.
type SnapshotSaver struct {
	Every int
	Sink  SnapshotSink
}

func (a SnapshotSaver) Name() string { return "snapshot-saver" }

func (a SnapshotSaver) AfterStep(_ context.Context, s *Simulator) error {
	if a.Every <= 0 || a.Sink == nil || s.state.Step%a.Every != 0 {
		return nil
	}
	if err := a.Sink.SaveSnapshot(s.state.Snapshot()); err != nil {
		return fmt.Errorf("snapshot at step %d: %w", s.state.Step, err)
	}
	return nil
}
