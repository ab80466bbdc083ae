package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/mantonx/cdscore/internal/logger"
)

// inProcBus is the bundled Bus implementation: an in-memory
// publish/subscribe dispatcher with a bounded ring of recent events,
// synchronous and asynchronous delivery, and panic-safe subscriber
// notification. It is not a network-facing broker; remote fan-out is an
// external collaborator's concern.
type inProcBus struct {
	cfg BusConfig
	log interface {
		Debug(string, ...interface{})
		Info(string, ...interface{})
		Warn(string, ...interface{})
		Error(string, ...interface{})
	}

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	recent        []Event
	running       bool

	eventCh chan Event
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Bus with the given configuration.
func New(cfg BusConfig) Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 200
	}
	return &inProcBus{
		cfg:           cfg,
		log:           logger.Named("events"),
		subscriptions: make(map[string]*Subscription),
		recent:        make([]Event, 0, cfg.RingSize),
	}
}

func (b *inProcBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("event bus already running")
	}
	b.running = true
	b.eventCh = make(chan Event, b.cfg.BufferSize)
	b.stopCh = make(chan struct{})

	b.wg.Add(1)
	go b.loop(ctx)
	b.log.Info("event bus started", "buffer_size", b.cfg.BufferSize)
	return nil
}

func (b *inProcBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish delivers event to every matching subscriber on the caller's
// goroutine before it returns; PublishAsync queues it for the dispatch
// goroutine instead.
func (b *inProcBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if event.ID == "" {
		event.ID = generateEventID()
	}
	b.dispatch(event)
	return nil
}

func (b *inProcBus) PublishAsync(event Event) error {
	return b.enqueue(event)
}

func (b *inProcBus) enqueue(event Event) error {
	b.mu.RLock()
	running := b.running
	ch := b.eventCh
	b.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if event.ID == "" {
		event.ID = generateEventID()
	}
	select {
	case ch <- event:
		return nil
	default:
		b.log.Warn("event channel full, dropping event", "type", event.Type, "id", event.ID)
		return fmt.Errorf("event channel full")
	}
}

func (b *inProcBus) Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{ID: randomID("sub"), Filter: filter, Handler: handler}
	b.subscriptions[sub.ID] = sub
	return sub, nil
}

func (b *inProcBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscriptions[id]; !ok {
		return fmt.Errorf("subscription not found: %s", id)
	}
	delete(b.subscriptions, id)
	return nil
}

func (b *inProcBus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.recent) {
		limit = len(b.recent)
	}
	out := make([]Event, limit)
	copy(out, b.recent[len(b.recent)-limit:])
	return out
}

func (b *inProcBus) loop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-b.eventCh:
			if !ok {
				return
			}
			b.dispatch(event)
		}
	}
}

func (b *inProcBus) dispatch(event Event) {
	b.mu.Lock()
	b.recent = append(b.recent, event)
	if len(b.recent) > b.cfg.RingSize {
		b.recent = b.recent[len(b.recent)-b.cfg.RingSize:]
	}
	var matched []*Subscription
	for _, sub := range b.subscriptions {
		if MatchesFilter(event, sub.Filter) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		b.notify(sub, event)
	}
}

func (b *inProcBus) notify(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in event handler", "subscription_id", sub.ID, "recovered", r, "event_id", event.ID)
		}
	}()
	if err := sub.Handler(event); err != nil {
		b.log.Error("event handler error", "subscription_id", sub.ID, "error", err, "event_id", event.ID)
	}
}

func randomID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(buf))
}
