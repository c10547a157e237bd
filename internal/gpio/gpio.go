// Package gpio drives the rig monitor's fault lamp with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Lamp is a single output line lit while any fault is active.
type Lamp interface {
	// Set drives the lamp on or off.
	Set(on bool) error

	// Close turns the lamp off and releases GPIO resources.
	Close() error
}

// Defaults (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 12
)

// Nop is a Lamp that does nothing. Used when no lamp is configured.
type Nop struct{}

// Set does nothing.
func (Nop) Set(bool) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }
