package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_TypedAndAllSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var typed, all []Event

	bus.Subscribe(EventMetricsPublished, func(e Event) {
		mu.Lock()
		typed = append(typed, e)
		mu.Unlock()
	})
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		all = append(all, e)
		mu.Unlock()
	})

	bus.PublishMetricsPublished("acme", true, "p1")
	bus.PublishSeriesRecomputed("acme", false, "run-1", 3)
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, typed, 1)
	assert.Len(t, all, 2)

	e := typed[0]
	assert.Equal(t, "acme", e.GetString("company_id"))
	assert.True(t, e.GetBool("is_tax_record"))
	assert.Equal(t, "p1", e.GetString("period_id"))
	assert.False(t, e.Timestamp.IsZero())
}

func TestEvent_MissingFields(t *testing.T) {
	e := Event{Data: map[string]interface{}{"company_id": 42}}
	assert.Equal(t, "", e.GetString("company_id"))
	assert.False(t, e.GetBool("missing"))
}
