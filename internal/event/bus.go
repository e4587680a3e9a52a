// Package event carries in-process notifications about graph, corpus and
// database changes between components.
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	ArtistCreated   Type = "artist.created"
	GraphReloaded   Type = "graph.reloaded"
	CorpusReloaded  Type = "corpus.reloaded"
	DatabaseChanged Type = "database.changed"
	ImportCompleted Type = "import.completed"
)

// Event is one notification. Data holds small scalar details such as
// counts or IDs.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler processes an event on the bus goroutine. Handlers must not block
// for long; a panicking handler is logged and skipped.
type Handler func(Event)

// Bus delivers events asynchronously through a buffered channel. Publish
// never blocks; events that do not fit in the buffer are dropped.
type Bus struct {
	ch     chan Event
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[Type][]Handler
	all  []Handler

	dropped  atomic.Int64
	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	drained  chan struct{}
}

// NewBus creates a bus holding up to bufSize undelivered events.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:      make(chan Event, bufSize),
		logger:  logger.With("component", "event-bus"),
		subs:    make(map[Type][]Handler),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers h for every event, after the type-specific
// handlers have run.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish queues e, filling in its ID and timestamp when unset. A nil bus
// discards the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event buffer full, dropping event", "type", string(e.Type), "event_id", e.ID)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Start delivers events until Stop is called, then delivers whatever is
// still buffered and returns. Run it in its own goroutine.
func (b *Bus) Start() {
	b.running.Store(true)
	defer close(b.drained)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.stop:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop ends delivery. When Start is running, Stop waits until the buffer
// has been drained.
func (b *Bus) Stop() {
	first := false
	b.stopOnce.Do(func() {
		close(b.stop)
		first = true
	})
	if !first || !b.running.Load() {
		return
	}
	select {
	case <-b.drained:
	case <-time.After(5 * time.Second):
		b.logger.Warn("timed out waiting for event handlers")
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Type])+len(b.all))
	handlers = append(handlers, b.subs[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "type", string(e.Type), "event_id", e.ID, "panic", r)
		}
	}()
	h(e)
}
