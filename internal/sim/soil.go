// Package sim provides a simulated soil sensor and pump so the controller
// runs without hardware. Moisture falls steadily and rises while the pump runs.
package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/soil-controller/internal/mathx"
)

// Defaults for the simulated soil.
const (
	DefaultInitialPct = 45.0
	DefaultDryRate    = 2.0  // percent per minute
	DefaultWetRate    = 30.0 // percent per minute while pumping
	DefaultDryRaw     = 3000
	DefaultWetRaw     = 1200
	DefaultNoise      = 8 // raw counts, peak

	// MaxRaw is the largest reading of the modelled 12-bit ADC.
	MaxRaw = 4095
)

// Config tunes the soil model.
type Config struct {
	InitialPct float64
	// DryRate and WetRate are in percent per minute.
	DryRate float64
	WetRate float64
	// DryRaw and WetRaw are the raw readings the simulated probe produces at
	// 0% and 100%.
	DryRaw int
	WetRaw int
	Noise  int
	Seed   int64
}

// DefaultConfig returns a slowly drying soil.
func DefaultConfig() Config {
	return Config{
		InitialPct: DefaultInitialPct,
		DryRate:    DefaultDryRate,
		WetRate:    DefaultWetRate,
		DryRaw:     DefaultDryRaw,
		WetRaw:     DefaultWetRaw,
		Noise:      DefaultNoise,
		Seed:       1,
	}
}

// Soil is a simulated pot of soil. It is a raw sensor source and a pump
// switch. Safe for concurrent use.
type Soil struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	pct     float64
	pumping bool
	last    time.Time
	rng     *rand.Rand
}

// NewSoil creates a soil model. now defaults to time.Now.
func NewSoil(cfg Config, now func() time.Time) *Soil {
	if now == nil {
		now = time.Now
	}
	return &Soil{
		cfg:  cfg,
		now:  now,
		pct:  mathx.Clamp(cfg.InitialPct, 0, 100),
		last: now(),
		rng:  rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Read advances the model and returns a raw probe reading.
func (s *Soil) Read() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	raw := float64(s.cfg.DryRaw) - s.pct/100*float64(s.cfg.DryRaw-s.cfg.WetRaw)
	if s.cfg.Noise > 0 {
		raw += float64(s.rng.Intn(2*s.cfg.Noise+1) - s.cfg.Noise)
	}
	return mathx.Clamp(int(raw+0.5), 0, MaxRaw), nil
}

// Set starts or stops watering.
func (s *Soil) Set(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if on != s.pumping {
		log.Info().Bool("on", on).Float64("soil_pct", mathx.Round2(s.pct)).Msg("simulated pump")
	}
	s.pumping = on
	return nil
}

// Moisture returns the true simulated moisture.
func (s *Soil) Moisture() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.pct
}

// Pumping reports whether the simulated pump is running.
func (s *Soil) Pumping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pumping
}

func (s *Soil) advance() {
	now := s.now()
	minutes := now.Sub(s.last).Minutes()
	s.last = now
	if minutes <= 0 {
		return
	}
	rate := -s.cfg.DryRate
	if s.pumping {
		rate = s.cfg.WetRate
	}
	s.pct = mathx.Clamp(s.pct+rate*minutes, 0, 100)
}
