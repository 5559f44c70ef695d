package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishInvokesHandlersInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	var mu sync.Mutex

	bus.Subscribe(TaskCompleted, func(Event) {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	bus.Subscribe(TaskCompleted, func(Event) {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	bus.Publish(Event{Type: TaskCompleted})

	assert.Equal(t, []int{1, 2}, order)
}

func TestBus_HandlerPanicDoesNotStopRemainingHandlers(t *testing.T) {
	bus := NewBus()
	var secondCalled bool

	bus.Subscribe(TaskFailed, func(Event) {
		panic("boom")
	})
	bus.Subscribe(TaskFailed, func(Event) {
		secondCalled = true
	})

	require.NotPanics(t, func() {
		bus.Publish(Event{Type: TaskFailed})
	})
	assert.True(t, secondCalled)
}

func TestBus_PublishWithNoSubscribersIsANoOp(t *testing.T) {
	bus := NewBus()
	require.NotPanics(t, func() {
		bus.Publish(Event{Type: BackupCreated})
	})
	assert.Zero(t, bus.SubscriberCount(BackupCreated))
}

func TestBus_UnsubscribeStopsFurtherDelivery(t *testing.T) {
	bus := NewBus()
	var calls int

	unsub := bus.Subscribe(IntentCreated, func(Event) {
		calls++
	})
	bus.Publish(Event{Type: IntentCreated})
	unsub()
	bus.Publish(Event{Type: IntentCreated})

	assert.Equal(t, 1, calls)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	unsub := bus.Subscribe(PortfolioUpdated, func(Event) {})
	require.NotPanics(t, func() {
		unsub()
		unsub()
	})
}

func TestBus_SubscribersAreIsolatedPerEventType(t *testing.T) {
	bus := NewBus()
	var taskCalls, intentCalls int

	bus.Subscribe(TaskCompleted, func(Event) { taskCalls++ })
	bus.Subscribe(IntentCreated, func(Event) { intentCalls++ })

	bus.Publish(Event{Type: TaskCompleted})

	assert.Equal(t, 1, taskCalls)
	assert.Equal(t, 0, intentCalls)
}

func TestBus_ConcurrentPublishAndSubscribeDoesNotRace(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(CircuitOpened, func(Event) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: CircuitOpened})
		}()
	}

	wg.Wait()
}

func TestManager_EmitTypedPublishesToBus(t *testing.T) {
	bus := NewBus()
	mgr := NewManager(bus, zerolog.Nop())

	received := make(chan Event, 1)
	bus.Subscribe(RecommendationCreated, func(e Event) {
		received <- e
	})

	mgr.EmitTyped(RecommendationCreated, "analyzer", &RecommendationEventData{Symbol: "NVDA", Action: "buy", Confidence: 0.9})

	select {
	case e := <-received:
		assert.Equal(t, RecommendationCreated, e.Type)
		assert.Equal(t, "analyzer", e.Source)
		typed, ok := e.GetTypedData().(*RecommendationEventData)
		require.True(t, ok)
		assert.Equal(t, "NVDA", typed.Symbol)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestManager_EmitErrorPublishesErrorOccurred(t *testing.T) {
	bus := NewBus()
	mgr := NewManager(bus, zerolog.Nop())

	received := make(chan Event, 1)
	bus.Subscribe(ErrorOccurred, func(e Event) {
		received <- e
	})

	mgr.EmitError("backup", assertableError{"disk full"})

	select {
	case e := <-received:
		typed, ok := e.GetTypedData().(*ErrorEventData)
		require.True(t, ok)
		assert.Equal(t, "backup", typed.Component)
		assert.Equal(t, "disk full", typed.Message)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

type assertableError struct{ msg string }

func (e assertableError) Error() string { return e.msg }
