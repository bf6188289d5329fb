package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSeriesRecomputed   EventType = "SERIES_RECOMPUTED"
	EventRecomputeFailed    EventType = "RECOMPUTE_FAILED"
	EventPeriodDeleted      EventType = "PERIOD_DELETED"
	EventMetricsPublished   EventType = "METRICS_PUBLISHED"
	EventMetricsUnpublished EventType = "METRICS_UNPUBLISHED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// GetString returns a string field of the event data, or "".
func (e Event) GetString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// GetBool returns a bool field of the event data, or false.
func (e Event) GetBool(key string) bool {
	b, _ := e.Data[key].(bool)
	return b
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	inflight    sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run on their own
// goroutines; Publish never waits for them.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		eb.dispatch(sub, event)
	}
	for _, sub := range eb.allSubs {
		eb.dispatch(sub, event)
	}
}

func (eb *EventBus) dispatch(sub Subscriber, event Event) {
	eb.inflight.Add(1)
	go func() {
		defer eb.inflight.Done()
		sub(event)
	}()
}

// Wait blocks until every dispatched subscriber call has returned. Used on
// shutdown so queued side effects are not lost.
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

// PublishSeriesRecomputed publishes a series recomputed event
func (eb *EventBus) PublishSeriesRecomputed(companyID string, isTaxRecord bool, runID string, periods int) {
	eb.Publish(Event{
		Type: EventSeriesRecomputed,
		Data: map[string]interface{}{
			"company_id":    companyID,
			"is_tax_record": isTaxRecord,
			"run_id":        runID,
			"periods":       periods,
		},
	})
}

// PublishRecomputeFailed publishes a recompute failure event
func (eb *EventBus) PublishRecomputeFailed(companyID string, isTaxRecord bool, phase string, err error) {
	eb.Publish(Event{
		Type: EventRecomputeFailed,
		Data: map[string]interface{}{
			"company_id":    companyID,
			"is_tax_record": isTaxRecord,
			"phase":         phase,
			"error":         err.Error(),
		},
	})
}

// PublishPeriodDeleted publishes a period deleted event
func (eb *EventBus) PublishPeriodDeleted(companyID string, isTaxRecord bool, periodID string) {
	eb.Publish(Event{
		Type: EventPeriodDeleted,
		Data: map[string]interface{}{
			"company_id":    companyID,
			"is_tax_record": isTaxRecord,
			"period_id":     periodID,
		},
	})
}

// PublishMetricsPublished publishes a false->true publication transition
func (eb *EventBus) PublishMetricsPublished(companyID string, isTaxRecord bool, periodID string) {
	eb.Publish(Event{
		Type: EventMetricsPublished,
		Data: map[string]interface{}{
			"company_id":    companyID,
			"is_tax_record": isTaxRecord,
			"period_id":     periodID,
		},
	})
}

// PublishMetricsUnpublished publishes a true->false publication transition
func (eb *EventBus) PublishMetricsUnpublished(companyID string, isTaxRecord bool, periodID string) {
	eb.Publish(Event{
		Type: EventMetricsUnpublished,
		Data: map[string]interface{}{
			"company_id":    companyID,
			"is_tax_record": isTaxRecord,
			"period_id":     periodID,
		},
	})
}
