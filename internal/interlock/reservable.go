package interlock

import (
	"fmt"
	"sync"
)

// LockState is the ownership state of a Reservable.
type LockState uint8

const (
	LockStateFree     LockState = 0
	LockStateReserved LockState = 1
	LockStateLocked   LockState = 2
)

func (s LockState) String() string {
	switch s {
	case LockStateFree:
		return "free"
	case LockStateReserved:
		return "reserved"
	case LockStateLocked:
		return "locked"
	default:
		return fmt.Sprintf("lock_state(%d)", uint8(s))
	}
}

// MarshalText renders the state by name for JSON and YAML.
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Lockable is implemented by every object that takes part in route
// reservation.
type Lockable interface {
	Reserve(holder Handle) error
	Lock(holder Handle) error
	Downgrade(holder Handle) error
	Release(holder Handle) error
	LockState() (LockState, Handle)
}

// Reservable is the Free → Reserved → Locked ownership cell shared by all
// interlockable objects. The zero value is Free.
//
// No Reservable is ever held by two holders at once: every transition
// checks and changes state and holder under one mutex.
type Reservable struct {
	mu     sync.Mutex
	state  LockState
	holder Handle
}

// Reserve claims a free Reservable for holder.
//
// Returns:
//   - nil on success (state becomes Reserved)
//   - ErrNotFree if the Reservable is Reserved or Locked by anyone
func (r *Reservable) Reserve(holder Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != LockStateFree {
		return ErrNotFree
	}
	r.state = LockStateReserved
	r.holder = holder
	return nil
}

// Lock promotes a reservation held by holder to Locked.
func (r *Reservable) Lock(holder Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == LockStateFree {
		return ErrNotReserved
	}
	if r.holder != holder {
		return ErrHolderMismatch
	}
	if r.state != LockStateReserved {
		return ErrNotReserved
	}
	r.state = LockStateLocked
	return nil
}

// Downgrade undoes a Lock, returning a Locked Reservable held by holder to
// Reserved. Route rollback uses it after a partial Lock.
func (r *Reservable) Downgrade(holder Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != LockStateLocked {
		return ErrNotLocked
	}
	if r.holder != holder {
		return ErrHolderMismatch
	}
	r.state = LockStateReserved
	return nil
}

// Release frees the Reservable if holder owns it, whatever its state.
// Releasing a Free Reservable is a no-op.
func (r *Reservable) Release(holder Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == LockStateFree {
		return nil
	}
	if r.holder != holder {
		return ErrHolderMismatch
	}
	r.state = LockStateFree
	r.holder = Handle{}
	return nil
}

// ReleaseForce frees the Reservable regardless of holder.
func (r *Reservable) ReleaseForce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = LockStateFree
	r.holder = Handle{}
}

// LockState returns the current state and holder as one consistent pair.
func (r *Reservable) LockState() (LockState, Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.holder
}

// State returns the current lock state.
func (r *Reservable) State() LockState {
	s, _ := r.LockState()
	return s
}

// Holder returns the current holder; unset when Free.
func (r *Reservable) Holder() Handle {
	_, h := r.LockState()
	return h
}

// IsInUse reports whether the Reservable is Reserved or Locked.
func (r *Reservable) IsInUse() bool {
	return r.State() != LockStateFree
}
