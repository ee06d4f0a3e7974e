package scheduler

import (
	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/telemetry"
)

// Renderer draws a screen. Fire-and-forget: the scheduler never waits on or
// inspects the result.
type Renderer interface {
	Render(screen logic.Screen, v logic.View)
}

// KeyInput polls the keypad without blocking.
type KeyInput interface {
	// Poll returns the next pending key, or false when idle.
	Poll() (logic.Key, bool)
}

// Deps are the collaborators driven by the loop.
type Deps struct {
	Sensor   logic.RawSource
	Keys     KeyInput
	Renderer Renderer
	Reporter telemetry.Reporter
	Pump     logic.Switch
}
