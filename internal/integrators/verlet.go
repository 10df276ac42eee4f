package integrators

import (
	"context"
	"fmt"
)

// VelocityVerlet is the kick-drift-kick scheme. Without a thermostat or
// barostat it samples the microcanonical ensemble.
type VelocityVerlet struct {
	Thermostat Thermostat
	Barostat   Barostat
}

func NewVelocityVerlet() *VelocityVerlet {
	return &VelocityVerlet{}
}

func (v *VelocityVerlet) Name() string {
	name := "velocity-verlet"
	if v.Thermostat != nil {
		name += "/" + v.Thermostat.Name()
	}
	if v.Barostat != nil {
		name += "/" + v.Barostat.Name()
	}
	return name
}

// Validate checks the coupling parameters of the attached thermostat and
// barostat.
func (v *VelocityVerlet) Validate() error {
	for _, c := range []any{v.Thermostat, v.Barostat} {
		if c, ok := c.(interface{ Validate() error }); ok {
			if err := c.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveState captures the variables of the attached couplings.
func (v *VelocityVerlet) SaveState() any {
	return [2]any{saveState(v.Thermostat), saveState(v.Barostat)}
}

func (v *VelocityVerlet) RestoreState(saved any) {
	s, ok := saved.([2]any)
	if !ok {
		return
	}
	restoreState(v.Thermostat, s[0])
	restoreState(v.Barostat, s[1])
}

func saveState(c any) any {
	if s, ok := c.(Stateful); ok {
		return s.SaveState()
	}
	return nil
}

func restoreState(c any, saved any) {
	if s, ok := c.(Stateful); ok && saved != nil {
		s.RestoreState(saved)
	}
}

func (v *VelocityVerlet) Step(ctx context.Context, sys *System, dt float64) error {
	st := sys.State
	if v.Thermostat != nil {
		if err := v.Thermostat.Begin(sys, dt); err != nil {
			return fmt.Errorf("%s: %w", v.Thermostat.Name(), err)
		}
	}

	if err := kick(sys, 0.5*dt); err != nil {
		return err
	}
	if err := drift(sys, dt); err != nil {
		return err
	}
	res, err := sys.Forces.Compute(ctx, st)
	if err != nil {
		return err
	}
	sys.Last = res
	if err := kick(sys, 0.5*dt); err != nil {
		return err
	}

	st.Step++
	st.Time += dt

	if v.Thermostat != nil {
		if err := v.Thermostat.End(sys, dt); err != nil {
			return fmt.Errorf("%s: %w", v.Thermostat.Name(), err)
		}
	}
	if v.Barostat != nil {
		if err := v.Barostat.Apply(ctx, sys, dt); err != nil {
			return err
		}
	}
	return nil
}
