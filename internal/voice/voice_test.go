package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	events   chan Event
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 16)}
}

func (f *fakeEngine) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeEngine) Events() <-chan Event { return f.events }

func (f *fakeEngine) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

const delay = 10 * time.Millisecond

func TestAdapter_NonContinuousEndsIdle(t *testing.T) {
	eng := newFakeEngine()
	var results []string
	var mu sync.Mutex
	a := NewAdapter(eng, Options{RestartDelay: delay, OnResult: func(text string, final bool) {
		mu.Lock()
		results = append(results, text)
		mu.Unlock()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, StateListening, a.State())

	eng.events <- Event{Kind: EventResult, Transcript: "I led a team", Final: true}
	eng.events <- Event{Kind: EventResult, Transcript: "of five"}
	eng.events <- Event{Kind: EventEnd}

	require.Eventually(t, func() bool { return a.State() == StateIdle }, time.Second, time.Millisecond)
	assert.False(t, a.Listening())
	assert.Equal(t, "I led a team of five", a.Transcript())

	time.Sleep(5 * delay)
	assert.Equal(t, 1, eng.Starts())
	mu.Lock()
	assert.Equal(t, []string{"I led a team", "of five"}, results)
	mu.Unlock()

	a.ResetTranscript()
	assert.Equal(t, "", a.Transcript())
}

func TestAdapter_ContinuousRestartsOnEnd(t *testing.T) {
	eng := newFakeEngine()
	a := NewAdapter(eng, Options{Continuous: true, RestartDelay: delay})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	eng.events <- Event{Kind: EventEnd}
	require.Eventually(t, func() bool { return eng.Starts() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return a.State() == StateListening }, time.Second, time.Millisecond)
	assert.Equal(t, 1, a.Restarts())

	eng.events <- Event{Kind: EventEnd}
	require.Eventually(t, func() bool { return eng.Starts() == 3 }, time.Second, time.Millisecond)
}

func TestAdapter_NetworkErrorRestartsOnce(t *testing.T) {
	eng := newFakeEngine()
	var codes []string
	var mu sync.Mutex
	a := NewAdapter(eng, Options{Continuous: true, RestartDelay: 5 * delay, OnError: func(code string) {
		mu.Lock()
		codes = append(codes, code)
		mu.Unlock()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	eng.events <- Event{Kind: EventError, Code: CodeNetwork}
	eng.events <- Event{Kind: EventEnd}

	require.Eventually(t, func() bool { return eng.Starts() == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * delay)
	assert.Equal(t, 2, eng.Starts())
	assert.True(t, a.Listening())
	mu.Lock()
	assert.Equal(t, []string{CodeNetwork}, codes)
	mu.Unlock()
}

func TestAdapter_StopPreventsRestart(t *testing.T) {
	eng := newFakeEngine()
	a := NewAdapter(eng, Options{Continuous: true, RestartDelay: 5 * delay})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	eng.events <- Event{Kind: EventEnd}
	require.Eventually(t, func() bool { return a.State() == StateEnded }, time.Second, time.Millisecond)
	a.Stop()

	time.Sleep(10 * delay)
	assert.Equal(t, 1, eng.Starts())
	assert.Equal(t, StateIdle, a.State())
	assert.False(t, a.Listening())

	// The engine's own abort after Stop is not reported.
	eng.events <- Event{Kind: EventError, Code: CodeAborted}
	time.Sleep(2 * delay)
	assert.Equal(t, StateIdle, a.State())
}

func TestAdapter_FatalErrorClearsGuard(t *testing.T) {
	eng := newFakeEngine()
	a := NewAdapter(eng, Options{Continuous: true, RestartDelay: delay})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	eng.events <- Event{Kind: EventError, Code: CodeNotAllowed}
	eng.events <- Event{Kind: EventEnd}

	require.Eventually(t, func() bool { return a.State() == StateIdle }, time.Second, time.Millisecond)
	time.Sleep(5 * delay)
	assert.Equal(t, 1, eng.Starts())
	assert.False(t, a.Listening())
}

func TestAdapter_NoSpeechKeepsListening(t *testing.T) {
	eng := newFakeEngine()
	a := NewAdapter(eng, Options{Continuous: true, RestartDelay: delay})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))

	eng.events <- Event{Kind: EventError, Code: CodeNoSpeech}
	eng.events <- Event{Kind: EventEnd}
	require.Eventually(t, func() bool { return eng.Starts() == 2 }, time.Second, time.Millisecond)
}

func TestAdapter_StartErrors(t *testing.T) {
	eng := newFakeEngine()
	eng.startErr = errors.New("microphone busy")
	var states []State
	a := NewAdapter(eng, Options{OnState: func(s State) { states = append(states, s) }})

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, a.State())
	assert.False(t, a.Listening())
	assert.Equal(t, []State{StateError}, states)

	eng.mu.Lock()
	eng.startErr = nil
	eng.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.ErrorIs(t, a.Start(ctx), ErrAlreadyListening)
}

func TestAdapter_ContextCancelStops(t *testing.T) {
	eng := newFakeEngine()
	a := NewAdapter(eng, Options{Continuous: true, RestartDelay: delay})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !a.Listening() }, time.Second, time.Millisecond)
	assert.Equal(t, StateIdle, a.State())
}
