// Package eventbus dispatches domain events to registered handlers and lets
// callers block until a specific event happens to a specific entity.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edvart/strike-inhouse/internal/intent"
)

var (
	ErrWaitTimeout         = errors.New("wait timed out")
	ErrWaitCancelled       = errors.New("wait cancelled")
	ErrContractViolation   = errors.New("intent handler contract violation")
	ErrIntentHandlerExists = errors.New("intent already has a handler")
)

// HandlerFunc handles an abstract event published against subject.
type HandlerFunc func(ctx context.Context, subject any, payload map[string]any) (any, error)

// Bus is a per-domain event dispatcher. The zero value is not usable; create
// one with New.
type Bus struct {
	name  string
	log   logrus.FieldLogger
	clock clock.Clock
	sched Scheduler

	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	intents  map[string]bool

	wmu     sync.Mutex
	waiters []*waiter
}

// New creates a bus. Detached handlers started by PublishAsync run on sched.
func New(name string, log logrus.FieldLogger, clk clock.Clock, sched Scheduler) *Bus {
	return &Bus{
		name:     name,
		log:      log.WithField("bus", name),
		clock:    clk,
		sched:    sched,
		handlers: make(map[string][]HandlerFunc),
		intents:  make(map[string]bool),
	}
}

// Name returns the bus name.
func (b *Bus) Name() string {
	return b.name
}

// Handle appends h to the handlers of eventType.
func (b *Bus) Handle(eventType string, h HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.intents[eventType] {
		return fmt.Errorf("%w: %s", ErrIntentHandlerExists, eventType)
	}
	b.handlers[eventType] = append(b.handlers[eventType], h)
	return nil
}

// HandleIntent registers the single handler of an intent event type. The
// handler must answer with an intent.Response.
func (b *Bus) HandleIntent(eventType string, h HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.handlers[eventType]) > 0 {
		return fmt.Errorf("%w: %s", ErrIntentHandlerExists, eventType)
	}
	b.intents[eventType] = true
	b.handlers[eventType] = []HandlerFunc{guardIntent(eventType, h)}
	return nil
}

// HasHandlers reports whether anything handles eventType.
func (b *Bus) HasHandlers(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) > 0
}

// IsIntent reports whether eventType is handled as an intent.
func (b *Bus) IsIntent(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.intents[eventType]
}

// On registers a typed handler for events of type T. Intent events are
// registered through HandleIntent.
func On[T any](b *Bus, h func(ctx context.Context, subject any, evt T) (any, error)) error {
	name := TypeName[T]()
	wrapped := func(ctx context.Context, subject any, payload map[string]any) (any, error) {
		evt, err := Decode[T](payload)
		if err != nil {
			return nil, err
		}
		return h(ctx, subject, evt)
	}
	if isIntent[T]() {
		return b.HandleIntent(name, wrapped)
	}
	return b.Handle(name, wrapped)
}

// OnIntent registers the handler of intent type T.
func OnIntent[T any](b *Bus, h func(ctx context.Context, subject any, evt T) (intent.Response, error)) error {
	name := TypeName[T]()
	return b.HandleIntent(name, func(ctx context.Context, subject any, payload map[string]any) (any, error) {
		evt, err := Decode[T](payload)
		if err != nil {
			return nil, err
		}
		return h(ctx, subject, evt)
	})
}

func guardIntent(eventType string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, subject any, payload map[string]any) (any, error) {
		res, err := h(ctx, subject, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrContractViolation, eventType, err)
		}
		switch r := res.(type) {
		case intent.Response:
			return r, nil
		case *intent.Response:
			if r != nil {
				return *r, nil
			}
		}
		return nil, fmt.Errorf("%w: %s returned %T", ErrContractViolation, eventType, res)
	}
}

// Publish dispatches evt against subject and runs every handler inline. It
// returns the result of the last handler that succeeded, or nil.
func (b *Bus) Publish(ctx context.Context, evt any, subject any) any {
	return b.dispatch(ctx, evt, subject, true)
}

// PublishAsync dispatches evt against subject. Handlers are started on the
// scheduler and their results are discarded.
func (b *Bus) PublishAsync(ctx context.Context, evt any, subject any) {
	b.dispatch(context.WithoutCancel(ctx), evt, subject, false)
}

func (b *Bus) dispatch(ctx context.Context, evt any, subject any, blocking bool) any {
	e, err := Abstract(evt)
	if err != nil {
		b.log.WithError(err).Error("Failed to dispatch event")
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}

	log := b.log.WithFields(logrus.Fields{
		"event":    e.Type,
		"event_id": e.ID,
		"subject":  describe(subject),
	})
	log.Debug("Publishing event")

	b.resolve(e, subject, PhasePre)
	b.resolve(e, subject, PhaseOn)

	b.mu.RLock()
	handlers := slices.Clone(b.handlers[e.Type])
	b.mu.RUnlock()

	var result any
	for _, h := range handlers {
		if !blocking {
			b.sched.Go(func() {
				b.invoke(ctx, log, h, e, subject)
			})
			continue
		}
		if res, ok := b.invoke(ctx, log, h, e, subject); ok {
			result = res
		}
	}

	b.resolve(e, subject, PhasePost)
	return result
}

func (b *Bus) invoke(ctx context.Context, log logrus.FieldLogger, h HandlerFunc, e Event, subject any) (res any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Handler panicked: %v\n%s", r, debug.Stack())
			res, ok = nil, false
		}
	}()

	res, err := h(ctx, subject, e.Data)
	if err != nil {
		if errors.Is(err, ErrContractViolation) {
			log.WithError(err).Error("Intent handler broke its contract")
		} else {
			log.WithError(err).Error("Handler failed")
		}
		return nil, false
	}
	return res, true
}

func describe(subject any) string {
	switch s := subject.(type) {
	case nil:
		return "<nil>"
	case Identified:
		return fmt.Sprintf("%T#%d", s, s.EntityID())
	default:
		return fmt.Sprintf("%T", s)
	}
}
