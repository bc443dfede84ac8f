// Package device runs one event loop per monitored appliance, serializing
// meter readings, timer ticks and schedule checks onto a single goroutine
// that owns the controller, and wiring persistence and MQTT fan-out.
package device

import (
	"context"
	"log"
	"time"

	"appliance-monitor/internal/controller"
	"appliance-monitor/internal/meter"
	"appliance-monitor/internal/mqtt"
	"appliance-monitor/internal/storage"
)

const saveInterval = 5 * time.Second

type task func(now time.Time, c *controller.Controller)

// Runner owns one controller and everything around it. All controller access
// goes through the run loop; external callers use the Exec-based accessors.
type Runner struct {
	name string
	ctrl *controller.Controller
	src  meter.Source
	db   *storage.Database
	pub  *mqtt.Publisher

	tasks   chan task
	done    chan struct{}
	changed bool
	dirty   bool
}

func NewRunner(ctrl *controller.Controller, src meter.Source, db *storage.Database, pub *mqtt.Publisher) *Runner {
	r := &Runner{
		name:  ctrl.Name(),
		ctrl:  ctrl,
		src:   src,
		db:    db,
		pub:   pub,
		tasks: make(chan task, 64),
		done:  make(chan struct{}),
	}
	return r
}

func (r *Runner) Name() string { return r.name }

// Run processes events until ctx is cancelled. It restores persisted state,
// starts the meter source, and drives the controller's second tick and
// minute schedule check.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	now := time.Now()
	r.restore(now)

	r.ctrl.RegisterListener(func() { r.changed = true })
	r.ctrl.OnCommit = func(e controller.HistoryEntry) {
		if err := r.db.AppendSession(r.name, e); err != nil {
			log.Printf("%s: failed to store session: %v", r.name, err)
		}
	}

	if err := r.pub.PublishDiscovery(r.name); err != nil {
		log.Printf("%s: discovery publish failed: %v", r.name, err)
	}

	r.ctrl.EnforceSchedule(now)
	r.flush(now)

	srcCtx, cancelSrc := context.WithCancel(ctx)
	defer cancelSrc()
	go func() {
		if err := r.src.Run(srcCtx, r.handlers()); err != nil {
			log.Printf("%s: meter source stopped: %v", r.name, err)
		}
	}()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	schedule := time.NewTicker(time.Minute)
	defer schedule.Stop()
	save := time.NewTicker(saveInterval)
	defer save.Stop()

	log.Printf("%s: runner started", r.name)

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case fn := <-r.tasks:
			now := time.Now()
			fn(now, r.ctrl)
			r.flush(now)
		case now := <-tick.C:
			r.ctrl.Tick(now)
			r.flush(now)
		case now := <-schedule.C:
			r.ctrl.EnforceSchedule(now)
			r.flush(now)
		case <-save.C:
			r.save()
		}
	}
}

// handlers adapts meter callbacks onto the event loop.
func (r *Runner) handlers() meter.Handlers {
	return meter.Handlers{
		Power: func(watts float64) {
			r.post(func(now time.Time, c *controller.Controller) { c.HandlePower(now, watts) })
		},
		PowerUnavailable: func() {
			r.post(func(_ time.Time, c *controller.Controller) { c.HandlePowerUnavailable() })
		},
		Energy: func(kwh float64) {
			r.post(func(now time.Time, c *controller.Controller) { c.HandleEnergy(now, kwh) })
		},
		EnergyUnavailable: func() {
			r.post(func(_ time.Time, c *controller.Controller) { c.HandleEnergyUnavailable() })
		},
		SwitchState: func(on bool) {
			r.post(func(now time.Time, c *controller.Controller) { c.HandleSwitchState(now, on) })
		},
	}
}

func (r *Runner) post(fn task) {
	select {
	case r.tasks <- fn:
	case <-r.done:
	}
}

// Exec runs fn on the event loop and waits for it. Returns false if the
// runner has already stopped.
func (r *Runner) Exec(fn task) bool {
	ack := make(chan struct{})
	wrapped := func(now time.Time, c *controller.Controller) {
		fn(now, c)
		close(ack)
	}
	select {
	case r.tasks <- wrapped:
	case <-r.done:
		return false
	}
	select {
	case <-ack:
		return true
	case <-r.done:
		return false
	}
}

// Status returns the presentation view, serialized through the loop.
func (r *Runner) Status() (controller.Status, bool) {
	var st controller.Status
	ok := r.Exec(func(now time.Time, c *controller.Controller) {
		st = c.Status(now)
	})
	return st, ok
}

// ResetAllCounters zeroes every durable counter and drops stored sessions.
func (r *Runner) ResetAllCounters() error {
	r.Exec(func(_ time.Time, c *controller.Controller) {
		c.ResetAllCounters()
	})
	if err := r.db.DeleteSessions(r.name); err != nil {
		return err
	}
	return nil
}

// ResetTodayCounters zeroes only the daily counters.
func (r *Runner) ResetTodayCounters() {
	r.Exec(func(_ time.Time, c *controller.Controller) {
		c.ResetTodayCounters()
	})
}

// SetSwitch commands the physical switch. Turning on is refused while the
// schedule blocks the device. Command failures are returned, not retried.
func (r *Runner) SetSwitch(on bool) error {
	if on {
		allowed := false
		r.Exec(func(_ time.Time, c *controller.Controller) {
			allowed = c.CanTurnOn()
		})
		if !allowed {
			return ErrScheduleBlocked
		}
		return r.src.TurnOn()
	}
	return r.src.TurnOff()
}

// Sessions returns stored committed sessions.
func (r *Runner) Sessions(limit int) ([]storage.SessionRecord, error) {
	return r.db.Sessions(r.name, limit)
}

// SessionsByRange returns stored sessions in [from, to].
func (r *Runner) SessionsByRange(from, to time.Time) ([]storage.SessionRecord, error) {
	return r.db.SessionsByRange(r.name, from, to)
}

func (r *Runner) restore(now time.Time) {
	rec, err := r.db.LoadState(r.name)
	if err != nil {
		log.Printf("%s: failed to load state: %v", r.name, err)
		return
	}
	if rec == nil {
		return
	}
	snap := controller.SnapshotFromRecord(rec, now)
	r.ctrl.Restore(snap)
	log.Printf("%s: state restored, total=%d today=%d", r.name, snap.SessionsTotal, snap.SessionsToday)
}

func (r *Runner) flush(now time.Time) {
	if !r.changed {
		return
	}
	r.changed = false
	r.dirty = true
	if err := r.pub.PublishStatus(r.ctrl.Status(now)); err != nil {
		log.Printf("%s: publish failed: %v", r.name, err)
	}
}

func (r *Runner) save() {
	if !r.dirty {
		return
	}
	r.dirty = false
	rec := r.ctrl.Snapshot().Record()
	if err := r.db.SaveState(r.name, rec); err != nil {
		log.Printf("%s: failed to save state: %v", r.name, err)
		r.dirty = true
	}
}

func (r *Runner) shutdown() {
	// Final save captures an open session so it can be resumed next start.
	r.dirty = true
	r.save()
	r.ctrl.Stop()
	log.Printf("%s: runner stopped", r.name)
}
