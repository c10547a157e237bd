// Package device talks to the LED rig's HTTP API.
// The real implementation speaks JSON over HTTP.
// The fake implementation allows testing without a rig.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// Client is the rig API used by the poller and the command dispatcher.
type Client interface {
	// Status fetches one snapshot. Failures are *NetworkError or
	// *MalformedResponseError.
	Status(ctx context.Context) (*logic.Snapshot, error)
	// SetLED switches a channel on or off.
	SetLED(ctx context.Context, channel string, on bool) (Ack, error)
	// SetFaultMode arms a simulation mode by id ("1".."12").
	SetFaultMode(ctx context.Context, mode string) (Ack, error)
}

// Ack is the rig's answer to a command.
type Ack struct {
	// Message is the server-supplied message, empty when none was sent.
	Message string
	// RequestID correlates the command with rig-side logs.
	RequestID string
}

// NetworkError means the request did not produce a 2xx response.
type NetworkError struct {
	Op         string
	StatusCode int    // 0 when no response was received
	Message    string // server-supplied "error" field, if any
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError means the rig answered with an unexpected payload.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ServerMessage extracts the server-supplied message from err, if any.
func ServerMessage(err error) string {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Message
	}
	return ""
}
