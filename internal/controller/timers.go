package controller

import "time"

// TimerKind identifies one of the three debounced timer slots. At most one
// timer of each kind is pending at any instant.
type TimerKind int

const (
	// TimerOn debounces transitions towards standby/active. Carries a
	// target state. Restarting with the same target is a no-op; a
	// different target cancels and replaces the pending timer.
	TimerOn TimerKind = iota
	// TimerOff is the off/grace timer ending a session. It refuses to
	// restart while pending: the first grace timer wins, so later small
	// fluctuations do not postpone expiry.
	TimerOff
	// TimerAutoOff is the inactivity safety timer tied to the physical
	// switch. It also refuses to restart while pending.
	TimerAutoOff
)

func (k TimerKind) String() string {
	switch k {
	case TimerOn:
		return "on"
	case TimerOff:
		return "off"
	case TimerAutoOff:
		return "auto-off"
	}
	return "unknown"
}

type pendingTimer struct {
	deadline time.Time
	target   State // TimerOn only
}

// Expiry is a fired timer popped from the set.
type Expiry struct {
	Kind   TimerKind
	Target State
}

// TimerSet holds the pending deadline for each timer kind. Expiry is driven
// by PopDue from the owner's tick, which clears the slot before the caller
// handles the expiry, so a handler may immediately start a new timer of the
// same kind.
type TimerSet struct {
	slots [3]*pendingTimer
}

func NewTimerSet() *TimerSet {
	return &TimerSet{}
}

// StartOn schedules the debounced transition to target. See TimerOn for the
// replacement policy.
func (t *TimerSet) StartOn(now time.Time, delay time.Duration, target State) {
	if p := t.slots[TimerOn]; p != nil {
		if p.target == target {
			return
		}
		t.slots[TimerOn] = nil
	}
	t.slots[TimerOn] = &pendingTimer{deadline: now.Add(delay), target: target}
}

// Start schedules a TimerOff or TimerAutoOff expiry. A no-op while a timer of
// that kind is already pending. Returns true if the timer was armed.
func (t *TimerSet) Start(kind TimerKind, now time.Time, delay time.Duration) bool {
	if t.slots[kind] != nil {
		return false
	}
	t.slots[kind] = &pendingTimer{deadline: now.Add(delay)}
	return true
}

// Cancel clears a pending timer. Idempotent when none is pending, and safe to
// call for a timer that already fired.
func (t *TimerSet) Cancel(kind TimerKind) {
	t.slots[kind] = nil
}

// CancelAll clears every pending timer. Used at shutdown so no orphaned
// expiry fires after teardown.
func (t *TimerSet) CancelAll() {
	for i := range t.slots {
		t.slots[i] = nil
	}
}

// Pending reports whether a timer of the given kind is pending.
func (t *TimerSet) Pending(kind TimerKind) bool {
	return t.slots[kind] != nil
}

// PendingTarget returns the target of the pending on timer, empty if none.
func (t *TimerSet) PendingTarget() State {
	if p := t.slots[TimerOn]; p != nil {
		return p.target
	}
	return ""
}

// Deadline returns the pending deadline for a kind, zero if none.
func (t *TimerSet) Deadline(kind TimerKind) time.Time {
	if p := t.slots[kind]; p != nil {
		return p.deadline
	}
	return time.Time{}
}

// PopDue removes and returns the earliest-deadline timer due at now. The slot
// is cleared before returning. Callers loop until ok is false so multiple
// timers due on the same tick all fire, in deadline order.
func (t *TimerSet) PopDue(now time.Time) (Expiry, bool) {
	best := -1
	for i, p := range t.slots {
		if p == nil || p.deadline.After(now) {
			continue
		}
		if best == -1 || p.deadline.Before(t.slots[best].deadline) {
			best = i
		}
	}
	if best == -1 {
		return Expiry{}, false
	}
	p := t.slots[best]
	t.slots[best] = nil
	return Expiry{Kind: TimerKind(best), Target: p.target}, true
}
