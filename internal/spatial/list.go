package spatial

import (
	"context"
	"sync/atomic"

	"github.com/san-kum/mdsim/internal/compute"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/san-kum/mdsim/internal/spatial")

// List owns the current index and decides when to replace it.
type List struct {
	dev     compute.Device
	cutoff  float64
	skin    float64
	policy  Policy
	tracker *Tracker
	current atomic.Pointer[Index]
	builds  atomic.Int64
}

func NewList(dev compute.Device, cutoff, skin float64, policy Policy) *List {
	return &List{
		dev:     dev,
		cutoff:  cutoff,
		skin:    skin,
		policy:  policy,
		tracker: NewTracker(0, 0),
	}
}

func (l *List) Cutoff() float64   { return l.cutoff }
func (l *List) Skin() float64     { return l.skin }
func (l *List) Policy() Policy    { return l.policy }
func (l *List) Tracker() *Tracker { return l.tracker }
func (l *List) Index() *Index     { return l.current.Load() }
func (l *List) Builds() int       { return int(l.builds.Load()) }

// Build unconditionally replaces the index and resets the tracker.
func (l *List) Build(ctx context.Context, st *particles.State) error {
	_, span := tracer.Start(ctx, "spatial.build", trace.WithAttributes(
		attribute.Int("particles", st.N),
		attribute.Float64("radius", l.cutoff+l.skin),
	))
	defer span.End()

	ix, err := Build(l.dev, st, l.cutoff, l.skin, l.policy)
	if err != nil {
		span.RecordError(err)
		return err
	}
	l.current.Store(ix)
	l.tracker.resize(st.N, st.D)
	n := l.builds.Add(1)

	span.SetAttributes(attribute.Int("entries", ix.Entries()), attribute.Bool("brute_force", ix.BruteForce()))
	logrus.Debugf("spatial: build #%d at step %d: %d pairs, cells %v", n, st.Step, ix.Pairs(), ix.Cells())
	return nil
}

// NeedsRebuild reports whether the current index may miss an interacting pair.
func (l *List) NeedsRebuild(st *particles.State) bool {
	ix := l.current.Load()
	if ix == nil || ix.n != st.N || ix.boxVersion != st.Box.Version() {
		return true
	}
	if l.tracker.Len() != st.N {
		return true
	}
	first, second := l.tracker.Largest()
	return l.policy.Exceeded(first, second, l.skin)
}

// RebuildIfNeeded rebuilds when NeedsRebuild says so and reports whether it did.
func (l *List) RebuildIfNeeded(ctx context.Context, st *particles.State) (bool, error) {
	if !l.NeedsRebuild(st) {
		return false, nil
	}
	if err := l.Build(ctx, st); err != nil {
		return false, err
	}
	return true, nil
}

// NeighborsOf returns the candidate neighbors of particle i in the current index.
func (l *List) NeighborsOf(i int) []int32 {
	ix := l.current.Load()
	if ix == nil {
		return nil
	}
	return ix.NeighborsOf(i)
}
