//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives an output line through the Linux GPIO character device.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealOutput requests pin as an output, initially off. With activeLow the
// line is driven low for on, as most relay boards expect.
func NewRealOutput(chipName string, pin int, activeLow bool) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pump pin %d: %w", pin, err)
	}

	return &RealOutput{chip: chip, line: line}, nil
}

// Set drives the line.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pump pin: %w", err)
	}
	return nil
}

// Close drives the line off and returns it to an input with pull-down
// (matching Pi boot defaults) before releasing it.
func (o *RealOutput) Close() error {
	var errs []error
	if o.line != nil {
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch pump off: %w", err))
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pump pin: %w", err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pump pin: %w", err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RealMatrix scans a keypad wired as row outputs and column inputs with
// pull-ups. A row is selected by driving it low; a pressed key then pulls its
// column low.
type RealMatrix struct {
	chip *gpiocdev.Chip
	rows *gpiocdev.Lines
	cols *gpiocdev.Lines

	idle []int
	sel  []int
	vals []int
}

// NewRealMatrix requests the row and column lines.
func NewRealMatrix(chipName string, rowPins, colPins []int) (*RealMatrix, error) {
	if len(rowPins) == 0 || len(colPins) == 0 {
		return nil, errors.New("keypad needs at least one row and one column")
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	idle := make([]int, len(rowPins))
	for i := range idle {
		idle[i] = 1
	}

	rows, err := chip.RequestLines(rowPins, gpiocdev.AsOutput(idle...))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request keypad rows %v: %w", rowPins, err)
	}

	cols, err := chip.RequestLines(colPins, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		rows.Close()
		chip.Close()
		return nil, fmt.Errorf("request keypad columns %v: %w", colPins, err)
	}

	return &RealMatrix{
		chip: chip,
		rows: rows,
		cols: cols,
		idle: idle,
		sel:  make([]int, len(rowPins)),
		vals: make([]int, len(colPins)),
	}, nil
}

// Scan selects each row in turn and reads the columns.
func (m *RealMatrix) Scan() (int, int, bool, error) {
	defer m.rows.SetValues(m.idle)

	for r := range m.sel {
		copy(m.sel, m.idle)
		m.sel[r] = 0
		if err := m.rows.SetValues(m.sel); err != nil {
			return 0, 0, false, fmt.Errorf("select keypad row %d: %w", r, err)
		}
		if err := m.cols.Values(m.vals); err != nil {
			return 0, 0, false, fmt.Errorf("read keypad columns: %w", err)
		}
		for c, v := range m.vals {
			if v == 0 {
				return r, c, true, nil
			}
		}
	}
	return 0, 0, false, nil
}

// Close returns the rows to inputs with pull-down and releases all lines.
func (m *RealMatrix) Close() error {
	var errs []error
	if m.rows != nil {
		if err := m.rows.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure keypad rows: %w", err))
		}
		if err := m.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close keypad rows: %w", err))
		}
	}
	if m.cols != nil {
		if err := m.cols.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close keypad columns: %w", err))
		}
	}
	if m.chip != nil {
		if err := m.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
