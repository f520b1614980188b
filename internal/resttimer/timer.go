// Package resttimer is a single purpose countdown state machine for the rest
// period between sets.
package resttimer

import (
	"time"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// Snapshot is the observable timer state at a point in time.
type Snapshot struct {
	State     State         `json:"state"`
	Remaining time.Duration `json:"remaining"`
	Total     time.Duration `json:"total"`
	Progress  float64       `json:"progress"`
}

// Timer counts down a rest period. The remaining time is derived from the
// captured start timestamp and the wall clock, not from tick counting, so
// delayed or dropped ticks cause no drift. Not safe for concurrent use, the
// owner serializes access.
type Timer struct {
	state State
	total time.Duration

	// base is the remaining time at startedAt (running) or the frozen
	// remaining time (paused)
	base       time.Time
	baseLeft   time.Duration
	onComplete func()

	NowFunc func() time.Time
}

// New returns an idle timer. onComplete fires exactly once per countdown
// that reaches zero, it may be nil.
func New(onComplete func()) *Timer {
	return &Timer{
		state:      StateIdle,
		onComplete: onComplete,
		NowFunc:    time.Now,
	}
}

func (t *Timer) State() State {
	return t.state
}

// Start begins a fresh countdown. Valid from any state, a completed or idle
// timer re-enters running.
func (t *Timer) Start(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	t.total = duration
	t.baseLeft = duration
	t.base = t.NowFunc()
	t.state = StateRunning
}

// Pause freezes the remaining time. No-op unless running.
func (t *Timer) Pause() {
	if t.state != StateRunning {
		return
	}
	left := t.remaining()
	if left < 0 {
		left = 0
	}
	t.baseLeft = left
	t.state = StatePaused
}

// Resume continues the countdown from the frozen remaining time. No-op
// unless paused.
func (t *Timer) Resume() {
	if t.state != StatePaused {
		return
	}
	t.base = t.NowFunc()
	t.state = StateRunning
}

// AddTime adjusts the remaining time by delta, which may be negative.
// Remaining is clamped to 0, and reaching 0 completes the countdown.
// Valid from running or paused.
func (t *Timer) AddTime(delta time.Duration) {
	if t.state != StateRunning && t.state != StatePaused {
		return
	}

	left := t.remaining() + delta
	if left <= 0 {
		t.complete()
		return
	}

	t.baseLeft = left
	t.base = t.NowFunc()
}

// Skip ends the rest immediately and completes the countdown. No-op from
// idle, and from completed (the completion signal never fires twice).
func (t *Timer) Skip() {
	if t.state != StateRunning && t.state != StatePaused {
		return
	}
	t.complete()
}

// Stop resets the timer to idle and cancels any pending completion.
func (t *Timer) Stop() {
	t.state = StateIdle
	t.total = 0
	t.baseLeft = 0
}

// Tick re-derives the remaining time from the wall clock and completes the
// countdown once it reaches zero. Driven by a periodic signal while running.
func (t *Timer) Tick() {
	if t.state != StateRunning {
		return
	}
	if t.remaining() <= 0 {
		t.complete()
	}
}

func (t *Timer) Snapshot() Snapshot {
	remaining := t.remaining()
	if remaining < 0 {
		remaining = 0
	}

	var progress float64
	if t.total > 0 {
		progress = 1 - float64(remaining)/float64(t.total)
	}

	return Snapshot{
		State:     t.state,
		Remaining: remaining,
		Total:     t.total,
		Progress:  progress,
	}
}

func (t *Timer) remaining() time.Duration {
	switch t.state {
	case StateRunning:
		return t.baseLeft - t.NowFunc().Sub(t.base)
	case StatePaused:
		return t.baseLeft
	default:
		return 0
	}
}

func (t *Timer) complete() {
	t.state = StateCompleted
	t.baseLeft = 0
	if t.onComplete != nil {
		t.onComplete()
	}
}
