// Package voice adapts a speech-recognition engine for answering interview
// questions by voice. In continuous mode the adapter restarts the engine
// after it ends or hits a transient network error, until Stop is called.
package voice

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// State is the adapter's recognition state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateError     State = "error"
	StateEnded     State = "ended"
)

// EventKind identifies an engine event.
type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnd
)

// Error codes reported by engines.
const (
	CodeNetwork      = "network"
	CodeNoSpeech     = "no-speech"
	CodeAborted      = "aborted"
	CodeNotAllowed   = "not-allowed"
	CodeAudioCapture = "audio-capture"
)

// Event is emitted by an Engine.
type Event struct {
	Kind       EventKind
	Transcript string
	Final      bool
	Code       string
}

// Engine is a speech-recognition session. Start may be called again after
// the engine reports EventEnd.
type Engine interface {
	Start() error
	Stop()
	Events() <-chan Event
}

// Options configures an Adapter. Callbacks run on the adapter's event
// goroutine and may call back into the adapter.
type Options struct {
	Continuous   bool
	RestartDelay time.Duration
	OnResult     func(transcript string, final bool)
	OnError      func(code string)
	OnState      func(State)
}

var ErrAlreadyListening = errors.New("voice: already listening")

const defaultRestartDelay = 300 * time.Millisecond

// Adapter drives an Engine.
type Adapter struct {
	engine Engine
	opts   Options

	mu             sync.Mutex
	state          State
	shouldListen   bool
	restartPending bool
	restartTimer   *time.Timer
	loopRunning    bool
	final          []string
	interim        string
	restarts       int
}

// NewAdapter returns an idle adapter.
func NewAdapter(engine Engine, opts Options) *Adapter {
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = defaultRestartDelay
	}
	return &Adapter{engine: engine, opts: opts, state: StateIdle}
}

// Start begins listening. Events are processed until ctx is done, which also
// stops the adapter.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.shouldListen {
		a.mu.Unlock()
		return ErrAlreadyListening
	}
	a.shouldListen = true
	a.mu.Unlock()

	if err := a.engine.Start(); err != nil {
		a.mu.Lock()
		a.shouldListen = false
		notify := a.setState(StateError)
		a.mu.Unlock()
		notify()
		return err
	}

	a.mu.Lock()
	notify := a.setState(StateListening)
	startLoop := !a.loopRunning
	a.loopRunning = true
	a.mu.Unlock()
	notify()

	if startLoop {
		go a.loop(ctx)
	}
	return nil
}

// Stop stops listening. No restart happens after Stop returns.
func (a *Adapter) Stop() {
	a.mu.Lock()
	a.shouldListen = false
	a.restartPending = false
	if a.restartTimer != nil {
		a.restartTimer.Stop()
		a.restartTimer = nil
	}
	notify := a.setState(StateIdle)
	a.mu.Unlock()

	a.engine.Stop()
	notify()
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Listening reports whether the adapter intends to keep listening.
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shouldListen
}

// Restarts returns how many automatic restarts have been performed.
func (a *Adapter) Restarts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restarts
}

// Transcript returns the final results so far followed by the latest interim
// result.
func (a *Adapter) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	parts := append([]string{}, a.final...)
	if a.interim != "" {
		parts = append(parts, a.interim)
	}
	return strings.Join(parts, " ")
}

// ResetTranscript clears accumulated results.
func (a *Adapter) ResetTranscript() {
	a.mu.Lock()
	a.final = nil
	a.interim = ""
	a.mu.Unlock()
}

func (a *Adapter) loop(ctx context.Context) {
	defer func() {
		a.mu.Lock()
		a.loopRunning = false
		a.mu.Unlock()
	}()
	events := a.engine.Events()
	for {
		select {
		case <-ctx.Done():
			a.Stop()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handle(ev)
		}
	}
}

func (a *Adapter) handle(ev Event) {
	var callbacks []func()

	a.mu.Lock()
	switch ev.Kind {
	case EventResult:
		text := strings.TrimSpace(ev.Transcript)
		if ev.Final {
			if text != "" {
				a.final = append(a.final, text)
			}
			a.interim = ""
		} else {
			a.interim = text
		}
		if a.opts.OnResult != nil {
			cb := a.opts.OnResult
			callbacks = append(callbacks, func() { cb(text, ev.Final) })
		}
	case EventError:
		if ev.Code == CodeAborted && !a.shouldListen {
			break
		}
		callbacks = append(callbacks, a.setState(StateError))
		if a.opts.OnError != nil {
			cb := a.opts.OnError
			callbacks = append(callbacks, func() { cb(ev.Code) })
		}
		switch {
		case transient(ev.Code):
			if a.opts.Continuous && a.shouldListen {
				a.scheduleRestart()
			}
		case ev.Code != CodeNoSpeech:
			a.shouldListen = false
		}
	case EventEnd:
		callbacks = append(callbacks, a.setState(StateEnded))
		if a.opts.Continuous && a.shouldListen {
			a.scheduleRestart()
		} else if !a.restartPending {
			a.shouldListen = false
			callbacks = append(callbacks, a.setState(StateIdle))
		}
	}
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func transient(code string) bool {
	return code == CodeNetwork
}

// scheduleRestart must be called with a.mu held.
func (a *Adapter) scheduleRestart() {
	if a.restartPending {
		return
	}
	a.restartPending = true
	a.restartTimer = time.AfterFunc(a.opts.RestartDelay, a.restart)
}

func (a *Adapter) restart() {
	a.mu.Lock()
	a.restartPending = false
	a.restartTimer = nil
	if !a.shouldListen {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if err := a.engine.Start(); err != nil {
		// The engine may still be running after a transient error.
		log.Printf("[voice] restart failed: %v", err)
		return
	}

	a.mu.Lock()
	if !a.shouldListen {
		// Stopped while restarting.
		a.mu.Unlock()
		a.engine.Stop()
		return
	}
	a.restarts++
	notify := a.setState(StateListening)
	a.mu.Unlock()
	notify()
}

// setState must be called with a.mu held; the returned func runs the
// OnState callback and must be called after unlocking.
func (a *Adapter) setState(s State) func() {
	if a.state == s {
		return func() {}
	}
	a.state = s
	cb := a.opts.OnState
	if cb == nil {
		return func() {}
	}
	return func() { cb(s) }
}
