package gpio

import "sync"

// FakeLamp records lamp writes for test assertions.
type FakeLamp struct {
	mu sync.Mutex

	// Writes contains every value passed to Set, in order.
	Writes []bool

	// On is the current lamp state.
	On bool

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set. The state is unchanged.
	SetError error
}

// NewFakeLamp creates a FakeLamp that starts off.
func NewFakeLamp() *FakeLamp {
	return &FakeLamp{}
}

// Set records the write.
func (f *FakeLamp) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Writes = append(f.Writes, on)
	f.On = on
	return nil
}

// Close turns the lamp off and marks it closed.
func (f *FakeLamp) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.On = false
	f.Closed = true
	return nil
}

// State returns the current state and the number of writes so far.
func (f *FakeLamp) State() (on bool, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On, len(f.Writes)
}

// SetErr changes the error returned by Set.
func (f *FakeLamp) SetErr(err error) {
	f.mu.Lock()
	f.SetError = err
	f.mu.Unlock()
}
