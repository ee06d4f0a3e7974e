// Package display renders the menu screens as text lines for the status page
// and the log.
package display

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/mathx"
)

// BarWidth is the number of cells in the moisture bar.
const BarWidth = 10

// Sink receives every rendered frame.
type Sink interface {
	SetDisplay(screen string, lines []string)
}

// Panel renders frames into a Sink. It implements the scheduler's Renderer.
type Panel struct {
	sink Sink
}

// NewPanel creates a panel writing to sink; a nil sink only logs.
func NewPanel(sink Sink) *Panel {
	return &Panel{sink: sink}
}

// Render draws screen with the values in v.
func (p *Panel) Render(screen logic.Screen, v logic.View) {
	lines := Lines(screen, v)
	if p.sink != nil {
		p.sink.SetDisplay(screen.String(), lines)
	}
	log.Debug().Stringer("screen", screen).Strs("lines", lines).Msg("redraw")
}

// Lines returns the text of one screen.
func Lines(screen logic.Screen, v logic.View) []string {
	switch screen {
	case logic.ScreenMain:
		pump := "OFF"
		if v.PumpOn {
			pump = "ON"
		}
		return []string{
			"SOIL IRRIGATION",
			fmt.Sprintf("%s %.0f%%", Bar(v.Moisture, BarWidth), v.Moisture),
			fmt.Sprintf("Target: %.0f%%", v.Target),
			"Pump: " + pump,
			"*=Config menu",
		}
	case logic.ScreenConfigMenu:
		return []string{
			"CONFIGURATION",
			"A: Calibrate sensor",
			"B: Set target",
			fmt.Sprintf("C: Report every %d s", v.IntervalSeconds),
			"*: Back",
		}
	case logic.ScreenSetpointInput:
		return []string{
			"SET TARGET",
			fmt.Sprintf("Current: %.0f%%", v.Target),
			"Enter 0-100: " + v.Buffer + "_",
			"#=OK *=Back",
		}
	case logic.ScreenIntervalInput:
		return []string{
			"REPORT INTERVAL",
			fmt.Sprintf("Current: %d s", v.IntervalSeconds),
			"New (s): " + v.Buffer + "_",
			"#=OK *=Back",
		}
	case logic.ScreenCalibDry:
		return calibration("Probe in DRY air", v.LastRaw)
	case logic.ScreenCalibWet:
		return calibration("Probe in WATER", v.LastRaw)
	}
	return []string{screen.String()}
}

func calibration(instruction string, raw int) []string {
	return []string{
		"CALIBRATION",
		instruction,
		"Press # to capture",
		fmt.Sprintf("ADC: %d", raw),
		"*=Back",
	}
}

// Bar draws pct (0-100) as a bar of width cells.
func Bar(pct float64, width int) string {
	filled := int(math.Round(mathx.Clamp(pct, 0, 100) / 100 * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
