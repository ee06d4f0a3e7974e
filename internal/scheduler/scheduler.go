// Package scheduler runs the cooperative control loop: sensor sampling,
// telemetry reporting, keypad handling and the control law share a single
// goroutine and are interleaved by elapsed-time checks.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/soil-controller/internal/logic"
	"github.com/sweeney/soil-controller/internal/telemetry"
)

// Loop timing defaults.
const (
	DefaultSamplePeriod  = 2000 * time.Millisecond
	DefaultLoopDelay     = 50 * time.Millisecond
	DefaultReportTimeout = 5 * time.Second
)

// Config holds the fixed loop timings.
type Config struct {
	SamplePeriod  time.Duration
	ReportTimeout time.Duration
	FilterSize    int
}

// StepResult reports what happened during one iteration so the caller can
// publish, persist and expose it.
type StepResult struct {
	Sampled   bool
	SampleErr error
	Report    *telemetry.Attempt
	Key       *logic.Outcome
	Pump      *logic.PumpEvent
	PumpErr   error
}

// Scheduler owns the runtime settings, filter, menu and pump. All of its
// methods must be called from one goroutine.
type Scheduler struct {
	cfg      Config
	settings *logic.Settings
	filter   *logic.Filter
	menu     *logic.Menu
	pump     *logic.Pump

	sensor   logic.RawSource
	keys     KeyInput
	renderer Renderer
	reporter telemetry.Reporter

	startTime     time.Time
	lastSample    time.Time
	lastReport    time.Time
	lastHeartbeat time.Time

	hasReading bool
	sampledYet bool
	moisture   float64
	lastRaw    int
	counts     logic.Counts
}

// New creates a scheduler. start anchors the report and heartbeat intervals;
// the sensor is sampled on the first Step.
func New(cfg Config, settings *logic.Settings, d Deps, start time.Time) *Scheduler {
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = DefaultSamplePeriod
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = DefaultReportTimeout
	}
	return &Scheduler{
		cfg:           cfg,
		settings:      settings,
		filter:        logic.NewFilter(cfg.FilterSize, settings),
		menu:          logic.NewMenu(settings, d.Sensor),
		pump:          logic.NewPump(d.Pump),
		sensor:        d.Sensor,
		keys:          d.Keys,
		renderer:      d.Renderer,
		reporter:      d.Reporter,
		startTime:     start,
		lastReport:    start,
		lastHeartbeat: start,
	}
}

// Step runs one loop iteration at time now.
func (s *Scheduler) Step(ctx context.Context, now time.Time) StepResult {
	var res StepResult

	// 1. sensor
	if !s.sampledYet || now.Sub(s.lastSample) >= s.cfg.SamplePeriod {
		s.sampledYet = true
		s.lastSample = now
		res.Sampled = true
		res.SampleErr = s.sample()
		if s.menu.Screen() == logic.ScreenMain {
			s.redraw()
		}
	}

	// 2. telemetry; the interval is re-read every iteration
	if now.Sub(s.lastReport) >= s.settings.ReportInterval() {
		s.lastReport = now
		if s.hasReading {
			a := s.report(ctx, now)
			res.Report = &a
		} else {
			log.Debug().Msg("no reading yet, skipping report")
		}
	}

	// 3. keypad
	if k, ok := s.keys.Poll(); ok {
		out := s.menu.HandleKey(k)
		res.Key = &out
		s.logKey(out)
		s.redraw()
	}

	// 4. control; the pump is left alone until a reading converts
	if s.hasReading {
		target := s.settings.Target()
		changed, err := s.pump.Apply(logic.Evaluate(s.moisture, target))
		if err != nil {
			res.PumpErr = err
			log.Warn().Err(err).Msg("pump output failed")
		}
		if changed {
			ev := logic.PumpEvent{Timestamp: now, State: s.pump.State(), Moisture: s.moisture, Target: target}
			res.Pump = &ev
			if ev.State == logic.PumpOn {
				s.counts.PumpOn++
			} else {
				s.counts.PumpOff++
			}
			log.Info().Str("pump", string(ev.State)).Float64("moisture", ev.Moisture).Float64("target", target).Msg("pump switched")
		}
	}

	return res
}

func (s *Scheduler) sample() error {
	raw, err := s.sensor.Read()
	if err != nil {
		log.Warn().Err(err).Msg("sensor read failed")
		return err
	}
	s.lastRaw = raw
	s.counts.Samples++

	pct, err := s.filter.Sample(raw)
	if err != nil {
		dry, wet := s.settings.Calibration()
		log.Warn().Err(err).Int("raw", raw).Int("dry", dry).Int("wet", wet).Msg("cannot convert reading, keeping previous value")
		return err
	}
	s.moisture = pct
	s.hasReading = true
	log.Debug().Int("raw", raw).Float64("moisture", pct).Int("window", s.filter.Len()).Msg("sampled")
	return nil
}

func (s *Scheduler) report(ctx context.Context, now time.Time) telemetry.Attempt {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReportTimeout)
	defer cancel()

	start := time.Now()
	code, err := s.reporter.Send(ctx, s.moisture)
	a := telemetry.Attempt{
		Timestamp: now,
		Moisture:  s.moisture,
		Status:    code,
		Err:       err,
		Duration:  time.Since(start),
	}
	s.counts.Reports++
	if err != nil {
		s.counts.ReportFailures++
		ev := log.Warn().Err(err).Float64("moisture", s.moisture)
		if code != 0 {
			ev = ev.Int("status", code)
		}
		ev.Msg("telemetry failed, will try again next interval")
	} else {
		log.Info().Int("status", code).Float64("moisture", s.moisture).Msg("telemetry sent")
	}
	return a
}

func (s *Scheduler) logKey(out logic.Outcome) {
	ev := log.Debug().Str("key", out.Key.String()).Stringer("from", out.From).Stringer("to", out.To).Bool("accepted", out.Accepted)
	ev.Msg("key")

	switch {
	case out.Rejected:
		log.Info().Err(out.Err).Msg("input discarded")
	case out.Err != nil:
		log.Warn().Err(out.Err).Msg("calibration capture failed")
	}

	switch out.Change {
	case logic.ChangeTarget:
		log.Info().Float64("target", s.settings.Target()).Msg("target changed")
	case logic.ChangeInterval:
		log.Info().Uint32("seconds", s.settings.ReportIntervalSeconds()).Msg("report interval changed")
	case logic.ChangeCalibDry, logic.ChangeCalibWet:
		dry, wet := s.settings.Calibration()
		l := log.Info()
		if s.settings.Degenerate() {
			l = log.Warn().AnErr("warning", logic.ErrDegenerateCalibration)
		}
		l.Str("point", string(out.Change)).Int("dry", dry).Int("wet", wet).Msg("calibration captured")
	}
}

func (s *Scheduler) redraw() {
	screen := s.menu.Screen()
	if screen == logic.ScreenCalibDry || screen == logic.ScreenCalibWet {
		// calibration screens show the ADC as it is now
		if raw, err := s.sensor.Read(); err != nil {
			log.Warn().Err(err).Msg("live calibration read failed")
		} else {
			s.lastRaw = raw
		}
	}
	s.renderer.Render(screen, s.View())
}

// Redraw requests an unconditional redraw of the current screen.
func (s *Scheduler) Redraw() { s.redraw() }

// View returns the values shown on screen.
func (s *Scheduler) View() logic.View {
	dry, wet := s.settings.Calibration()
	return logic.View{
		Moisture:        s.moisture,
		Target:          s.settings.Target(),
		PumpOn:          s.pump.On(),
		Buffer:          s.menu.Buffer(),
		CalibDry:        dry,
		CalibWet:        wet,
		IntervalSeconds: s.settings.ReportIntervalSeconds(),
		LastRaw:         s.lastRaw,
	}
}

// Screen returns the current menu screen.
func (s *Scheduler) Screen() logic.Screen { return s.menu.Screen() }

// Moisture returns the latest smoothed value and whether one exists.
func (s *Scheduler) Moisture() (float64, bool) { return s.moisture, s.hasReading }

// Counts returns activity counters since start.
func (s *Scheduler) Counts() logic.Counts { return s.counts }

// Settings exposes the runtime settings for read-only display.
func (s *Scheduler) Settings() logic.SettingsSnapshot { return s.settings.Snapshot() }

// CheckHeartbeat returns heartbeat data if interval has elapsed since the last
// heartbeat (or start). It returns nil when interval <= 0.
func (s *Scheduler) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(s.lastHeartbeat) < interval {
		return nil
	}
	s.lastHeartbeat = now
	return &logic.HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Counts:    s.counts,
	}
}

// Shutdown switches the pump off. It returns the resulting event when the
// pump was running.
func (s *Scheduler) Shutdown(now time.Time) (*logic.PumpEvent, error) {
	changed, err := s.pump.Apply(logic.TurnOff)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	s.counts.PumpOff++
	return &logic.PumpEvent{Timestamp: now, State: logic.PumpOff, Moisture: s.moisture, Target: s.settings.Target()}, nil
}
