// Package command sends LED and fault-mode commands to the rig.
package command

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sweeney/ledrig-monitor/internal/device"
	"github.com/sweeney/ledrig-monitor/internal/logic"
)

const (
	OpSetLED       = "set_led"
	OpSetFaultMode = "set_fault_mode"

	FaultModeSetMessage    = "Fault mode set successfully."
	FaultModeFailedMessage = "Failed to set fault mode."
)

// CommandError is returned when the rig rejects or never receives a command.
// Message is suitable for showing to an operator.
type CommandError struct {
	Op      string
	Channel string // empty for fault-mode commands
	State   bool
	Mode    string // empty for LED commands
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// LEDState is the locally displayed LED state that optimistic commands update.
type LEDState interface {
	// LED returns the displayed state of channel.
	LED(channel string) bool
	// Override sets the displayed state of channel ahead of the next poll.
	// The returned func undoes the override unless something newer has
	// replaced it.
	Override(channel string, on bool) (rollback func())
}

// Dispatcher issues commands. It never retries.
type Dispatcher struct {
	client device.Client
	leds   LEDState
	logger zerolog.Logger
}

// New creates a Dispatcher. leds may be nil if optimistic updates are not used.
func New(client device.Client, leds LEDState, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{client: client, leds: leds, logger: logger}
}

// SetChannel switches channel on or off on the rig.
func (d *Dispatcher) SetChannel(ctx context.Context, channel string, on bool) (device.Ack, error) {
	if !logic.IsChannel(channel) {
		return device.Ack{}, &CommandError{
			Op:      OpSetLED,
			Channel: channel,
			State:   on,
			Message: fmt.Sprintf("Unknown channel %q.", channel),
		}
	}

	ack, err := d.client.SetLED(ctx, channel, on)
	if err != nil {
		msg := device.ServerMessage(err)
		if msg == "" {
			msg = fmt.Sprintf("Failed to toggle %s LED.", channel)
		}
		d.logger.Warn().Err(err).
			Str("channel", channel).
			Bool("state", on).
			Str("request_id", ack.RequestID).
			Msg("set led failed")
		return ack, &CommandError{Op: OpSetLED, Channel: channel, State: on, Message: msg, Err: err}
	}

	if ack.Message == "" {
		ack.Message = fmt.Sprintf("%s LED turned %s.", channel, onOff(on))
	}
	d.logger.Info().
		Str("channel", channel).
		Bool("state", on).
		Str("request_id", ack.RequestID).
		Msg("led set")
	return ack, nil
}

// SetFaultMode arms simulation mode on the rig.
func (d *Dispatcher) SetFaultMode(ctx context.Context, mode string) (device.Ack, error) {
	if !logic.IsFaultMode(mode) {
		return device.Ack{}, &CommandError{
			Op:      OpSetFaultMode,
			Mode:    mode,
			Message: fmt.Sprintf("Unknown fault mode %q.", mode),
		}
	}

	ack, err := d.client.SetFaultMode(ctx, mode)
	if err != nil {
		msg := device.ServerMessage(err)
		if msg == "" {
			msg = FaultModeFailedMessage
		}
		d.logger.Warn().Err(err).Str("mode", mode).Str("request_id", ack.RequestID).Msg("set fault mode failed")
		return ack, &CommandError{Op: OpSetFaultMode, Mode: mode, Message: msg, Err: err}
	}

	if ack.Message == "" {
		ack.Message = FaultModeSetMessage
	}
	d.logger.Info().Str("mode", mode).Str("request_id", ack.RequestID).Msg("fault mode set")
	return ack, nil
}

// Apply shows channel as on/off immediately, then sends the command. If the
// command fails the displayed state is rolled back.
func (d *Dispatcher) Apply(ctx context.Context, channel string, on bool) (device.Ack, error) {
	if d.leds == nil || !logic.IsChannel(channel) {
		return d.SetChannel(ctx, channel, on)
	}

	rollback := d.leds.Override(channel, on)
	ack, err := d.SetChannel(ctx, channel, on)
	if err != nil {
		rollback()
		d.logger.Debug().Str("channel", channel).Msg("optimistic led state rolled back")
	}
	return ack, err
}

// Toggle inverts the displayed state of channel. It returns the requested state.
func (d *Dispatcher) Toggle(ctx context.Context, channel string) (bool, device.Ack, error) {
	on := true
	if d.leds != nil {
		on = !d.leds.LED(channel)
	}
	ack, err := d.Apply(ctx, channel, on)
	return on, ack, err
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
