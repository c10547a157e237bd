package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/ledrig-monitor/internal/logic"
)

// FakeClient is a test double that returns scripted snapshots and records commands.
type FakeClient struct {
	mu sync.Mutex

	// Responses contains scripted Status results.
	// Each call to Status consumes the next one; the last one repeats.
	Responses []FakeResponse
	index     int

	// Block, if set, makes Status wait until it is closed or ctx is done.
	Block chan struct{}
	// Started receives a value each time Status is entered (non-blocking send).
	Started chan struct{}

	// LEDCalls and ModeCalls record command invocations in order.
	LEDCalls  []LEDCall
	ModeCalls []string
	// CommandError, if set, is returned by SetLED and SetFaultMode.
	CommandError error
	// Message is returned in successful acks.
	Message string

	statusCalls int
}

// FakeResponse is one scripted Status result.
type FakeResponse struct {
	Snapshot *logic.Snapshot
	Err      error
}

// LEDCall records one SetLED invocation.
type LEDCall struct {
	Channel string
	On      bool
}

// NewFakeClient creates a FakeClient with the given responses.
func NewFakeClient(responses ...FakeResponse) *FakeClient {
	return &FakeClient{Responses: responses}
}

// OK is a convenience for a successful scripted response.
func OK(snap *logic.Snapshot) FakeResponse {
	return FakeResponse{Snapshot: snap}
}

// Down is a convenience for a failed scripted response.
func Down() FakeResponse {
	return FakeResponse{Err: &NetworkError{Op: "get status", Err: errors.New("connection refused")}}
}

// Status returns the next scripted response.
func (f *FakeClient) Status(ctx context.Context) (*logic.Snapshot, error) {
	f.mu.Lock()
	f.statusCalls++
	block := f.Block
	started := f.Started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &NetworkError{Op: "get status", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Responses) == 0 {
		return nil, &NetworkError{Op: "get status", Err: errors.New("no responses configured")}
	}
	r := f.Responses[f.index]
	if f.index < len(f.Responses)-1 {
		f.index++
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Snapshot.Clone(), nil
}

// SetLED records the call.
func (f *FakeClient) SetLED(ctx context.Context, channel string, on bool) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LEDCalls = append(f.LEDCalls, LEDCall{Channel: channel, On: on})
	if f.CommandError != nil {
		return Ack{}, f.CommandError
	}
	return Ack{Message: f.Message, RequestID: fmt.Sprintf("fake-%d", len(f.LEDCalls))}, nil
}

// SetFaultMode records the call.
func (f *FakeClient) SetFaultMode(ctx context.Context, mode string) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ModeCalls = append(f.ModeCalls, mode)
	if f.CommandError != nil {
		return Ack{}, f.CommandError
	}
	return Ack{Message: f.Message, RequestID: fmt.Sprintf("fake-mode-%d", len(f.ModeCalls))}, nil
}

// StatusCalls returns how many times Status was called.
func (f *FakeClient) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// Reset rewinds the scripted responses and clears recorded commands.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.statusCalls = 0
	f.LEDCalls = nil
	f.ModeCalls = nil
	f.CommandError = nil
}
