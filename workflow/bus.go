package workflow

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// EventType tags a lifecycle transition published on the bus.
type EventType string

const (
	EventPanelCreated    EventType = "panel_created"
	EventPanelReadmitted EventType = "panel_readmitted"
	EventStationPassed   EventType = "station_passed"
	EventPanelCompleted  EventType = "panel_completed"
	EventPanelFailed     EventType = "panel_failed"
	EventPanelRework     EventType = "panel_rework"
	EventOrderCompleted  EventType = "order_completed"
	EventOrderLowStock   EventType = "order_low_stock"
	EventPalletOpened    EventType = "pallet_opened"
	EventPalletAssigned  EventType = "pallet_assigned"
	EventPalletClosed    EventType = "pallet_closed"
)

// Event is one lifecycle transition. The state machine is the only
// publisher; the pallet manager and journal subscribe.
type Event struct {
	Type        EventType         `json:"type"`
	PanelSerial string            `json:"panel_serial,omitempty"`
	OrderID     string            `json:"order_id,omitempty"`
	PalletID    string            `json:"pallet_id,omitempty"`
	StationID   int               `json:"station_id,omitempty"`
	At          time.Time         `json:"at"`
	Detail      map[string]string `json:"detail,omitempty"`
}

// Handler consumes one event. Handlers run synchronously inside the
// publishing operation, in subscription order, so side effects like journal
// entries are applied before the operation returns.
type Handler func(Event) error

var (
	// ErrSubscriberExists is returned when Subscribe reuses an id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is given an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")
)

type subscriber struct {
	id      string
	handler Handler
}

// Bus fans lifecycle events out to subscribers. Delivery is synchronous and
// in subscription order: an event is durable in the panel store before it is
// published, and subscriber effects commit before the triggering operation
// returns.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber

	published atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// BusStats is a point-in-time snapshot of bus counters.
type BusStats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler under a unique id.
func (b *Bus) Subscribe(id string, h Handler) error {
	if h == nil {
		return errors.New("subscriber handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subscribers {
		if s.id == id {
			return ErrSubscriberExists
		}
	}
	b.subscribers = append(b.subscribers, subscriber{id: id, handler: h})
	return nil
}

// Unsubscribe removes a subscriber by id.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return nil
		}
	}
	return ErrSubscriberNotFound
}

// Publish delivers the event to every subscriber and collects their errors
// keyed by subscriber id. A handler error does not stop delivery to the
// remaining subscribers.
func (b *Bus) Publish(ev Event) map[string]error {
	b.published.Add(1)

	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	var errs map[string]error
	for _, s := range subs {
		if err := s.handler(ev); err != nil {
			b.failed.Add(1)
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[s.id] = err
			continue
		}
		b.delivered.Add(1)
	}
	return errs
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}
