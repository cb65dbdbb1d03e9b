// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockEvent(height int64) Event {
	return NewEvent(
		BlockConnectedEventType,
		BlockConnectedEvent{Height: height, Timestamp: time.Unix(height*60, 0)},
	)
}

// A chain tip stream racing with a subscriber leaving must not send on a
// closed channel.
func TestBlockStreamWhileUnsubscribing(t *testing.T) {
	for iter := range 300 {
		bus := NewEventBus(nil, nil)
		id, blocks := bus.Subscribe(BlockConnectedEventType)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for h := range int64(8) {
				bus.Publish(BlockConnectedEventType, blockEvent(h))
				bus.PublishAsync(BlockConnectedEventType, blockEvent(h))
			}
		}()
		go func() {
			defer wg.Done()
			if iter%2 == 0 {
				time.Sleep(time.Microsecond)
			}
			bus.Unsubscribe(BlockConnectedEventType, id)
		}()
		go func() {
			defer wg.Done()
			for evt := range blocks {
				_, ok := evt.Data.(BlockConnectedEvent)
				assert.True(t, ok)
			}
		}()
		wg.Wait()
		bus.Stop()
	}
}

func TestConcurrentHandlersThenStop(t *testing.T) {
	for range 300 {
		bus := NewEventBus(nil, nil)
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bus.SubscribeFunc(BlockConnectedEventType, func(Event) {})
			}()
		}
		wg.Wait()
		bus.Stop()
	}
}

func TestSlowSubscriberDoesNotStallChain(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Stop()
	_, blocks := bus.Subscribe(BlockConnectedEventType)
	for h := range int64(EventQueueSize) {
		bus.Publish(BlockConnectedEventType, blockEvent(h))
	}

	published := make(chan struct{})
	go func() {
		bus.Publish(BlockConnectedEventType, blockEvent(EventQueueSize))
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, blocks, EventQueueSize)
	first := <-blocks
	assert.Equal(t, int64(0), first.Data.(BlockConnectedEvent).Height)
}
