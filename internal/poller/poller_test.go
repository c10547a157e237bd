package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/ledrig-monitor/internal/device"
	"github.com/sweeney/ledrig-monitor/internal/logic"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func healthy() *logic.Snapshot {
	on := true
	return &logic.Snapshot{
		DutyCycles: map[string]int{"PIR": 100, "IR": 0, "TCS": 50, "LED1": 0, "LED3": 50},
		AuxState:   &on,
		FaultFlags: map[string]bool{"PIR_Sensor_Failure": false},
		FaultMode:  "Normal Operation",
	}
}

func faulty() *logic.Snapshot {
	s := healthy()
	s.FaultFlags["PIR_Sensor_Failure"] = true
	return s
}

type harness struct {
	p      *Poller
	client *device.FakeClient
	tick   chan time.Time
	out    chan Result
	done   chan error
	cancel context.CancelFunc
}

func startPoller(t *testing.T, client *device.FakeClient) *harness {
	t.Helper()
	h := &harness{
		client: client,
		tick:   make(chan time.Time),
		out:    make(chan Result, 16),
		done:   make(chan error, 1),
	}
	p, err := New(Config{Interval: time.Hour}, client, WithTicker(h.tick), WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	h.p = p

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- p.Run(ctx, h.out) }()

	t.Cleanup(func() {
		p.Close()
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return")
		}
	})
	return h
}

func (h *harness) next(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-h.out:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll result")
		return Result{}
	}
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Config{}, device.NewFakeClient())
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, logic.LivenessUp, p.Liveness(), "UP before the first poll")
	assert.Nil(t, p.Snapshot())

	_, err = New(Config{Interval: -time.Second}, device.NewFakeClient())
	assert.Error(t, err)
	_, err = New(Config{}, nil)
	assert.Error(t, err)
}

func TestRunPollsImmediately(t *testing.T) {
	h := startPoller(t, device.NewFakeClient(device.OK(faulty())))

	r := h.next(t)
	assert.Equal(t, logic.LivenessUp, r.Liveness)
	assert.NoError(t, r.Err)
	assert.Equal(t, t0, r.At)
	require.Len(t, r.Faults, 1)
	assert.Equal(t, "PIR Sensor", r.Faults[0].Name)
	assert.True(t, r.LEDs["PIR"])
	assert.True(t, r.LEDs["LED2"])
	assert.False(t, r.LEDs["LED1"])

	assert.Equal(t, StateUp, h.p.State())
	assert.Equal(t, faulty(), h.p.Snapshot())
	assert.Equal(t, t0, h.p.LastPoll())
}

func TestFailureGoesDown(t *testing.T) {
	h := startPoller(t, device.NewFakeClient(device.OK(healthy()), device.Down()))

	r := h.next(t)
	assert.Equal(t, logic.LivenessUp, r.Liveness)

	h.tick <- t0
	r = h.next(t)
	assert.Equal(t, logic.LivenessDown, r.Liveness)
	assert.Nil(t, r.Snapshot)
	var ne *device.NetworkError
	assert.True(t, errors.As(r.Err, &ne))
	require.Len(t, r.Faults, 1)
	assert.Equal(t, logic.CategoryConnectivity, r.Faults[0].Category)
	for _, c := range logic.Channels {
		assert.False(t, r.LEDs[c], c)
	}

	assert.Equal(t, StateDown, h.p.State())
	assert.Nil(t, h.p.Snapshot())
	assert.Error(t, h.p.LastError())
}

func TestRecoveryComesBackUp(t *testing.T) {
	h := startPoller(t, device.NewFakeClient(device.Down(), device.OK(healthy())))

	assert.Equal(t, logic.LivenessDown, h.next(t).Liveness)
	h.tick <- t0
	r := h.next(t)
	assert.Equal(t, logic.LivenessUp, r.Liveness)
	assert.Empty(t, r.Faults)
	assert.NoError(t, h.p.LastError())
}

func TestTickSuppressedWhileInFlight(t *testing.T) {
	client := device.NewFakeClient(device.OK(healthy()))
	client.Block = make(chan struct{})
	client.Started = make(chan struct{}, 1)
	h := startPoller(t, client)

	select {
	case <-client.Started:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll never started")
	}

	h.tick <- t0
	assert.Eventually(t, func() bool { return h.p.Suppressed() == 1 }, time.Second, 5*time.Millisecond)

	_, ok := h.p.RefreshNow(context.Background())
	assert.False(t, ok, "refresh must be suppressed while a poll is in flight")
	assert.Equal(t, int64(2), h.p.Suppressed())
	assert.Equal(t, StatePolling, h.p.State())

	close(client.Block)
	h.next(t)
	assert.Equal(t, 1, client.StatusCalls())

	select {
	case r := <-h.out:
		t.Fatalf("unexpected extra result %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRefreshNowDeliversToRun(t *testing.T) {
	h := startPoller(t, device.NewFakeClient(device.OK(healthy()), device.OK(faulty())))
	h.next(t)

	r, ok := h.p.RefreshNow(context.Background())
	require.True(t, ok)
	assert.Len(t, r.Faults, 1)

	delivered := h.next(t)
	assert.Equal(t, r.Faults, delivered.Faults)
}

func TestRefreshNowCallerGivesUp(t *testing.T) {
	client := device.NewFakeClient(device.OK(healthy()), device.OK(faulty()))
	h := startPoller(t, client)
	h.next(t)

	client.Block = make(chan struct{})
	client.Started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	refreshed := make(chan bool, 1)
	go func() {
		_, ok := h.p.RefreshNow(ctx)
		refreshed <- ok
	}()

	select {
	case <-client.Started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}
	cancel()

	select {
	case ok := <-refreshed:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("RefreshNow did not return after its context was cancelled")
	}
	assert.Equal(t, logic.LivenessUp, h.p.Liveness())
	assert.Equal(t, StatePolling, h.p.State(), "the request keeps running")

	close(client.Block)
	r := h.next(t)
	assert.Equal(t, logic.LivenessUp, r.Liveness)
	assert.NoError(t, r.Err)
	require.Len(t, r.Faults, 1)
	assert.Equal(t, "PIR Sensor", r.Faults[0].Name)
	assert.Equal(t, StateUp, h.p.State())
	assert.Equal(t, 2, client.StatusCalls())
}

func TestRefreshNowDeadlineDoesNotMarkDown(t *testing.T) {
	client := device.NewFakeClient(device.OK(healthy()))
	client.Block = make(chan struct{})
	p, err := New(Config{Timeout: time.Second}, client, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok := p.RefreshNow(ctx)
	assert.False(t, ok)

	close(client.Block)
	assert.Eventually(t, func() bool { return p.State() == StateUp }, time.Second, 5*time.Millisecond)
	assert.Equal(t, logic.LivenessUp, p.Liveness())
	assert.NoError(t, p.LastError())
	assert.Equal(t, healthy(), p.Snapshot())
}

func TestRunStopAbortsWithoutTransition(t *testing.T) {
	client := device.NewFakeClient(device.OK(healthy()))
	client.Block = make(chan struct{})
	client.Started = make(chan struct{}, 1)
	h := startPoller(t, client)

	<-client.Started
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, StateIdle, h.p.State())
	assert.Equal(t, logic.LivenessUp, h.p.Liveness())
	assert.NoError(t, h.p.LastError())
	assert.Len(t, h.out, 0)
}

func TestRefreshNowWithoutRun(t *testing.T) {
	p, err := New(Config{}, device.NewFakeClient(device.Down()))
	require.NoError(t, err)
	defer p.Close()

	r, ok := p.RefreshNow(context.Background())
	require.True(t, ok)
	assert.Equal(t, logic.LivenessDown, r.Liveness)
	assert.Equal(t, logic.LivenessDown, p.Liveness())
}

func TestResultsInOrder(t *testing.T) {
	client := device.NewFakeClient(device.OK(healthy()), device.Down(), device.OK(faulty()), device.Down())
	h := startPoller(t, client)

	want := []logic.Liveness{logic.LivenessUp, logic.LivenessDown, logic.LivenessUp, logic.LivenessDown}
	for i, w := range want {
		if i > 0 {
			h.tick <- t0
		}
		assert.Equal(t, w, h.next(t).Liveness, "poll %d", i)
	}
}

func TestCloseAbortsInFlightAndFreezesState(t *testing.T) {
	client := device.NewFakeClient(device.OK(healthy()))
	client.Block = make(chan struct{})
	client.Started = make(chan struct{}, 1)
	h := startPoller(t, client)

	<-client.Started
	h.p.Close()
	h.p.Close()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.Equal(t, StateIdle, h.p.State())
	assert.Equal(t, logic.LivenessUp, h.p.Liveness(), "aborted poll must not transition")
	assert.Nil(t, h.p.Snapshot())

	_, ok := h.p.RefreshNow(context.Background())
	assert.False(t, ok)
	assert.Len(t, h.out, 0)
}

func TestRunTwice(t *testing.T) {
	h := startPoller(t, device.NewFakeClient(device.OK(healthy())))
	h.next(t)
	err := h.p.Run(context.Background(), make(chan Result))
	assert.Error(t, err)
}
