package registrar

import (
	"fmt"
	"sync"
)

// State is the saga's externally observable phase. Transitions move strictly
// forward through the registration pipeline; any failure resets to idle.
type State string

const (
	StateIdle         State = "idle"
	StateUploading    State = "uploading"
	StateGeneratingTx State = "generatingTx"
	StateSigning      State = "signing"
	StateSubmitting   State = "submitting"
	StateDone         State = "done"
)

// Observer receives every state change. On a failure reset the accompanying
// error is non-nil; on forward progress it is nil.
type Observer func(state State, err error)

var forward = map[State]State{
	StateIdle:         StateUploading,
	StateUploading:    StateGeneratingTx,
	StateGeneratingTx: StateSigning,
	StateSigning:      StateSubmitting,
	StateSubmitting:   StateDone,
}

// StatusTracker serializes saga state transitions. It rejects skipped stages
// so a caller bug cannot report progress that never happened.
type StatusTracker struct {
	mu       sync.Mutex
	state    State
	observer Observer
}

func NewStatusTracker(observer Observer) *StatusTracker {
	return &StatusTracker{state: StateIdle, observer: observer}
}

func (t *StatusTracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Advance moves to the next stage. Only the immediate successor of the
// current state is accepted.
func (t *StatusTracker) Advance(next State) error {
	t.mu.Lock()
	if forward[t.state] != next {
		current := t.state
		t.mu.Unlock()
		return fmt.Errorf("invalid transition %s -> %s", current, next)
	}
	t.state = next
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer(next, nil)
	}
	return nil
}

// Fail resets to idle and reports the failure to the observer.
func (t *StatusTracker) Fail(err error) {
	t.mu.Lock()
	t.state = StateIdle
	observer := t.observer
	t.mu.Unlock()

	if observer != nil {
		observer(StateIdle, err)
	}
}

// Acknowledge returns a completed saga to idle so the tracker can be reused.
func (t *StatusTracker) Acknowledge() {
	t.mu.Lock()
	if t.state == StateDone {
		t.state = StateIdle
	}
	t.mu.Unlock()
}
