package logic

import "fmt"

// Evaluate is the control law: irrigate while the smoothed moisture is below
// target. Equality turns the pump off. There is no dead band, so readings
// hovering at the target can toggle the pump on consecutive iterations.
func Evaluate(smoothedPct, targetPct float64) Action {
	if smoothedPct < targetPct {
		return TurnOn
	}
	return TurnOff
}

// Pump tracks the actuator state and only drives the output on a change.
type Pump struct {
	out Switch
	on  bool
}

// NewPump wraps out. The output is assumed to start off.
func NewPump(out Switch) *Pump {
	return &Pump{out: out}
}

// On reports the current logical state.
func (p *Pump) On() bool { return p.on }

// State returns the current state as ON/OFF.
func (p *Pump) State() PumpState { return StateOf(p.on) }

// Apply drives the pump towards a. It returns changed=false without touching
// the output when the pump is already in the requested state. When the output
// fails the state is left unchanged so the next call retries.
func (p *Pump) Apply(a Action) (bool, error) {
	want := a == TurnOn
	if want == p.on {
		return false, nil
	}
	if err := p.out.Set(want); err != nil {
		return false, fmt.Errorf("set pump %s: %w", StateOf(want), err)
	}
	p.on = want
	return true, nil
}
