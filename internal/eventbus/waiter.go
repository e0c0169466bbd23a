package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Phase selects when a waiter resolves relative to the handlers of an event.
type Phase int

const (
	PhasePre Phase = iota
	PhaseOn
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhasePre:
		return "pre"
	case PhaseOn:
		return "on"
	case PhasePost:
		return "post"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type waiter struct {
	eventType string
	subject   any
	phase     Phase
	future    *Future
	timer     *clock.Timer
}

// WaitObject builds waiters for one event type.
type WaitObject struct {
	bus       *Bus
	eventType string
	timeout   time.Duration
}

// Wait prepares a one-shot waiter for eventType. A timeout of zero waits
// forever.
func (b *Bus) Wait(eventType string, timeout time.Duration) WaitObject {
	return WaitObject{bus: b, eventType: eventType, timeout: timeout}
}

// WaitFor is Wait for the typed event T.
func WaitFor[T any](b *Bus, timeout time.Duration) WaitObject {
	return b.Wait(TypeName[T](), timeout)
}

// Pre resolves before the handlers of the next matching event run.
func (w WaitObject) Pre(subject any) *Future {
	return w.bus.register(w, subject, PhasePre)
}

// On resolves right before the handlers of the next matching event run,
// after every pre waiter.
func (w WaitObject) On(subject any) *Future {
	return w.bus.register(w, subject, PhaseOn)
}

// Post resolves after the handlers of the next matching event ran.
func (w WaitObject) Post(subject any) *Future {
	return w.bus.register(w, subject, PhasePost)
}

func (b *Bus) register(w WaitObject, subject any, phase Phase) *Future {
	f := newFuture(b.log.WithFields(logrus.Fields{
		"event":   w.eventType,
		"subject": describe(subject),
		"phase":   phase.String(),
	}))
	wt := &waiter{
		eventType: w.eventType,
		subject:   subject,
		phase:     phase,
		future:    f,
	}
	f.cancel = func() {
		if b.remove(wt) {
			f.settle(Event{}, ErrWaitCancelled)
		}
	}

	b.wmu.Lock()
	b.waiters = append(b.waiters, wt)
	if w.timeout > 0 {
		timeout := w.timeout
		wt.timer = b.clock.AfterFunc(timeout, func() {
			if b.remove(wt) {
				f.settle(Event{}, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, wt.eventType, timeout))
			}
		})
	}
	b.wmu.Unlock()

	return f
}

// remove drops wt from the registry and reports whether it was still there.
// Whoever removes a waiter owns its future.
func (b *Bus) remove(wt *waiter) bool {
	b.wmu.Lock()
	defer b.wmu.Unlock()

	i := slices.Index(b.waiters, wt)
	if i < 0 {
		return false
	}
	b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
	if wt.timer != nil {
		wt.timer.Stop()
	}
	return true
}

func (b *Bus) resolve(e Event, subject any, phase Phase) {
	b.wmu.Lock()
	var matched []*waiter
	kept := b.waiters[:0]
	for _, wt := range b.waiters {
		if wt.phase == phase && wt.eventType == e.Type && sameSubject(wt.subject, subject) {
			matched = append(matched, wt)
			continue
		}
		kept = append(kept, wt)
	}
	clear(b.waiters[len(kept):])
	b.waiters = kept
	b.wmu.Unlock()

	for _, wt := range matched {
		if wt.timer != nil {
			wt.timer.Stop()
		}
		wt.future.settle(e, nil)
	}
}

// Pending returns the number of registered waiters.
func (b *Bus) Pending() int {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	return len(b.waiters)
}

// sameSubject matches by identity, or by runtime type and identifier.
func sameSubject(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() && a == b {
		return true
	}
	ia, okA := a.(Identified)
	ib, okB := b.(Identified)
	return okA && okB && ia.EntityID() == ib.EntityID()
}

// Future is the result of a waiter. It settles at most once.
type Future struct {
	log    logrus.FieldLogger
	done   chan struct{}
	cancel func()

	mu      sync.Mutex
	settled bool
	event   Event
	err     error
}

func newFuture(log logrus.FieldLogger) *Future {
	return &Future{log: log, done: make(chan struct{})}
}

// Done is closed once the future settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done. Leaving because of ctx
// does not cancel the waiter.
func (f *Future) Wait(ctx context.Context) (Event, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.event, f.err
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Cancel withdraws the waiter. A settled future is left untouched.
func (f *Future) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Future) settle(e Event, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.settled {
		f.log.Warn("Waiter already settled, ignoring second result")
		return false
	}
	f.settled = true
	f.event = e
	f.err = err
	close(f.done)
	return true
}
