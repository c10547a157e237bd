package gpio

import (
	"errors"
	"testing"
)

func TestFakeLampSet(t *testing.T) {
	f := NewFakeLamp()

	if err := f.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	on, writes := f.State()
	if on {
		t.Error("expected lamp off")
	}
	if writes != 2 {
		t.Errorf("expected 2 writes, got %d", writes)
	}
	if !f.Writes[0] || f.Writes[1] {
		t.Errorf("unexpected writes: %v", f.Writes)
	}
}

func TestFakeLampSetError(t *testing.T) {
	f := NewFakeLamp()
	f.SetError = errors.New("line busy")

	if err := f.Set(true); err == nil {
		t.Error("expected error")
	}
	if on, writes := f.State(); on || writes != 0 {
		t.Errorf("failed write should not change state: on=%v writes=%d", on, writes)
	}
}

func TestFakeLampCloseTurnsOff(t *testing.T) {
	f := NewFakeLamp()
	f.Set(true)

	if err := f.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.On {
		t.Error("expected lamp off after close")
	}
	if !f.Closed {
		t.Error("expected Closed to be true")
	}
}

func TestNopLamp(t *testing.T) {
	var l Lamp = Nop{}
	if err := l.Set(true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeLampImplementsLamp(t *testing.T) {
	var _ Lamp = NewFakeLamp()
}
