//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLamp drives an output line using the Linux GPIO character device.
type RealLamp struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealLamp requests line on chip as an output, initially off.
func NewRealLamp(chipName string, line int) (*RealLamp, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("rig-monitor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	l, err := chip.RequestLine(line, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request lamp line %d: %w", line, err)
	}

	return &RealLamp{chip: chip, line: l}, nil
}

// Set drives the line high for on, low for off.
func (r *RealLamp) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set lamp line: %w", err)
	}
	return nil
}

// Close turns the lamp off and releases GPIO resources.
// The line is reconfigured to input with pull-down (matching Pi boot
// defaults) before closing.
func (r *RealLamp) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("turn lamp off: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure lamp line: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lamp line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
