// Package events is the fire-and-forget notification path from the sync
// subsystem to UI/observability collaborators. Listeners never acknowledge;
// a panicking listener is isolated so the rest still get notified.
package events

import (
	"sync"

	"go.uber.org/zap"

	"fitsync/internal/logger"
	"fitsync/internal/models"
)

type Type string

const (
	TableUpdated     Type = "table_updated"
	SyncStarted      Type = "sync_started"
	SyncCompleted    Type = "sync_completed"
	SyncFailed       Type = "sync_failed"
	ConflictDetected Type = "conflict_detected"
	StreamConnected  Type = "stream_connected"
	StreamDropped    Type = "stream_dropped"
	StreamError      Type = "stream_error"
)

type Event struct {
	Type  Type
	Table models.Table // set for TableUpdated / ConflictDetected
	// Payload carries the affected record, sync result, or error detail.
	Payload any
}

type Handler func(Event)

// Subscription is the disposer handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	typ  Type
	id   int
	once sync.Once
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.handlers[s.typ], s.id)
	})
}

// Bus is a minimal typed pub/sub. Publish is synchronous: handlers run on
// the publisher's goroutine, each inside its own recover.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type]map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Type]map[int]Handler)}
}

func (b *Bus) Subscribe(typ Type, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[typ] == nil {
		b.handlers[typ] = make(map[int]Handler)
	}
	b.nextID++
	b.handlers[typ][b.nextID] = h

	return &Subscription{bus: b, typ: typ, id: b.nextID}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[ev.Type]))
	for _, h := range b.handlers[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, ev)
	}
}

func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Event handler panicked",
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ev)
}
