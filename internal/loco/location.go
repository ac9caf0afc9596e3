package loco

import (
	"time"

	"github.com/nerrad567/rail-logic-core/internal/interlock"
)

// LocationReached handles a feedback the train has hit. Speed is only ever
// lowered here; the worker raises it again when a leg is released.
//
// Stop and first markers are queued for the worker. A reduced, creep or
// stop feedback with a configured delay takes effect when its timer fires.
// It does not wait for the worker, which may be setting a route up.
func (l *Loco) LocationReached(feedback interlock.ObjectID) {
	if feedback == 0 || !l.automatic.Load() {
		return
	}
	l.fbMu.Lock()
	if delay := l.delayForLocked(feedback); delay > 0 {
		l.scheduleLocked(feedback, delay)
		l.fbMu.Unlock()
		return
	}
	overrun := l.applyLocationLocked(feedback)
	l.fbMu.Unlock()

	if overrun {
		l.overrun(feedback)
	}
}

// overrun stops the whole layout after the train passed its over feedback.
func (l *Loco) overrun(feedback interlock.ObjectID) {
	l.dispatcher.SetBooster(interlock.BoosterStop)
	l.logger.Error("loco hit overrun feedback", "loco_id", l.cfg.ID, "feedback_id", feedback)
}

func (l *Loco) delayForLocked(feedback interlock.ObjectID) time.Duration {
	switch feedback {
	case l.fbOver:
		return 0
	case l.fbStop:
		return l.delayStop
	case l.fbCreep:
		return l.delayCreep
	case l.fbReduced:
		return l.delayReduced
	}
	return 0
}

// applyLocationLocked lowers the speed for feedback and queues markers for
// the worker. It reports an overrun, which the caller handles after
// dropping fbMu.
func (l *Loco) applyLocationLocked(feedback interlock.ObjectID) (overrun bool) {
	switch feedback {
	case l.fbOver:
		l.SetSpeed(SpeedMin)
		return true

	case l.fbStop:
		l.SetSpeed(SpeedMin)
		if l.fbFirst != 0 {
			l.enqueueLocked(l.fbFirst)
		}
		l.enqueueLocked(l.fbStop)

	case l.fbCreep:
		l.lowerSpeed(l.cfg.CreepingSpeed)
		if l.fbFirst != 0 {
			l.enqueueLocked(l.fbFirst)
		}

	case l.fbReduced:
		l.lowerSpeed(l.cfg.ReducedSpeed)
		if l.fbFirst != 0 {
			l.enqueueLocked(l.fbFirst)
		}

	case l.fbFirst:
		l.lowerSpeed(l.routeSpeed(l.secondSpeed))
		l.enqueueLocked(l.fbFirst)

	case l.fbFirstCreep:
		if l.secondSpeed == interlock.RouteSpeedCreeping {
			l.lowerSpeed(l.cfg.CreepingSpeed)
		}

	case l.fbFirstReduced:
		switch l.secondSpeed {
		case interlock.RouteSpeedReduced, interlock.RouteSpeedCreeping:
			l.lowerSpeed(l.cfg.ReducedSpeed)
		}
	}
	return false
}

func (l *Loco) enqueueLocked(feedback interlock.ObjectID) {
	l.reached = append(l.reached, feedback)
	l.wakeUp()
}

// ─── Delayed speed changes ──────────────────────────────────────────────────

func (l *Loco) scheduleLocked(feedback interlock.ObjectID, delay time.Duration) {
	id := l.nextTimer
	l.nextTimer++
	l.pending[id] = pendingTask{
		feedback: feedback,
		timer:    time.AfterFunc(delay, func() { l.firePending(id) }),
	}
}

func (l *Loco) firePending(id uint64) {
	l.fbMu.Lock()
	task, ok := l.pending[id]
	if !ok {
		l.fbMu.Unlock()
		return
	}
	delete(l.pending, id)
	var overrun bool
	if l.automatic.Load() {
		overrun = l.applyLocationLocked(task.feedback)
	}
	l.fbMu.Unlock()

	if overrun {
		l.overrun(task.feedback)
	}
}

// pruneTimersLocked cancels delayed changes for feedbacks that are no
// longer part of the window. fbMu must be held.
func (l *Loco) pruneTimersLocked() {
	for id, task := range l.pending {
		switch task.feedback {
		case l.fbStop, l.fbCreep, l.fbReduced, l.fbFirst, l.fbFirstCreep, l.fbFirstReduced, l.fbOver:
			continue
		}
		task.timer.Stop()
		delete(l.pending, id)
	}
}

func (l *Loco) cancelTimersLocked() {
	for id, task := range l.pending {
		task.timer.Stop()
		delete(l.pending, id)
	}
}

// PendingDelays returns the number of delayed speed changes waiting.
func (l *Loco) PendingDelays() int {
	l.fbMu.Lock()
	defer l.fbMu.Unlock()
	return len(l.pending)
}
