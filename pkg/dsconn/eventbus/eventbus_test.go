package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestExactMatch(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	var got []any
	bus.On("HEARTBEAT_TIMEOUT", func(event string, payload any) {
		got = append(got, payload)
	})

	bus.Publish("HEARTBEAT_TIMEOUT", 1)
	bus.Publish("CONNECTION_ERROR", 2)

	assert.Equal(t, []any{1}, got)
}

func TestWildcardMatch(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	var got []string
	bus.On("RECORD_#", func(event string, payload any) {
		got = append(got, event)
	})

	bus.Publish("RECORD_UPDATED", nil)
	bus.Publish("RECORD_DELETED", nil)
	bus.Publish("HEARTBEAT_TIMEOUT", nil)

	assert.ElementsMatch(t, []string{"RECORD_UPDATED", "RECORD_DELETED"}, got)
}

func TestOff(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	calls := 0
	id := bus.On("X", func(string, any) { calls++ })

	bus.Publish("X", nil)
	bus.Off(id)
	bus.Publish("X", nil)

	assert.Equal(t, 1, calls)
}

func TestPublishRecoversPanickingHandler(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	bus.On("X", func(string, any) { panic("boom") })

	var secondCalled bool
	bus.On("X", func(string, any) { secondCalled = true })

	require.NotPanics(t, func() {
		bus.Publish("X", nil)
	})
	assert.True(t, secondCalled)
}

func TestPublishIsConcurrencySafe(t *testing.T) {
	bus := New(zaptest.NewLogger(t))

	var mu sync.Mutex
	count := 0
	bus.On("#", func(string, any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish("EVENT", nil)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, count)
}
