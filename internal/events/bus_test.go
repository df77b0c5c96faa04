package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBus_PublishWithoutListeners(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	require.NotPanics(t, func() {
		bus.Publish(Event{Type: TypeStats, Data: map[string]int{"licenseCount": 5}})
	})
	require.Zero(t, bus.SubscriberCount())
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	unsubscribe := bus.Subscribe(func(evt Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.Data.(int))
		return nil
	})
	defer unsubscribe()

	for i := range 10 {
		bus.Publish(Event{Type: TypeActivity, Data: i})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count atomic.Int32
	unsubscribe := bus.Subscribe(func(evt Event) error {
		count.Add(1)
		return nil
	})
	require.Equal(t, 1, bus.SubscriberCount())

	unsubscribe()
	unsubscribe()
	require.Zero(t, bus.SubscriberCount())

	bus.Publish(Event{Type: TypeAudit})
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, count.Load())
}

func TestBus_FailingListenerIsIsolated(t *testing.T) {
	tests := []struct {
		name   string
		listen Listener
	}{
		{
			name:   "error",
			listen: func(Event) error { return errors.New("socket closed") },
		},
		{
			name:   "panic",
			listen: func(Event) error { panic("boom") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			defer bus.Close()

			var healthy atomic.Int32
			bus.Subscribe(tt.listen)
			bus.Subscribe(func(Event) error {
				healthy.Add(1)
				return nil
			})
			require.Equal(t, 2, bus.SubscriberCount())

			bus.Publish(Event{Type: TypeNotification})

			require.Eventually(t, func() bool {
				return bus.SubscriberCount() == 1 && healthy.Load() == 1
			}, time.Second, 5*time.Millisecond)

			bus.Publish(Event{Type: TypeNotification})
			require.Eventually(t, func() bool { return healthy.Load() == 2 }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestBus_SlowListenerDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(WithQueueSize(1))
	defer bus.Close()

	release := make(chan struct{})
	bus.Subscribe(func(Event) error {
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		for range 100 {
			bus.Publish(Event{Type: TypeActivity})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow listener")
	}
	close(release)
}

func TestBus_Channel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, stop := bus.Channel(ctx, 4)
	defer stop()

	bus.Publish(Event{Type: TypeStats, Data: "x"})

	select {
	case evt := <-ch:
		require.Equal(t, TypeStats, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBus_ChannelStopReleasesWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := NewBus()
	defer bus.Close()

	_, stop := bus.Channel(context.Background(), 1)
	stop()
	stop()

	require.Equal(t, 0, bus.SubscriberCount())
}
