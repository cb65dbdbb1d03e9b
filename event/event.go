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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// EventQueueSize is the buffer of each channel subscriber
	EventQueueSize = 20
	// AsyncQueueSize bounds events waiting for the async workers
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 4
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// Subscriber receives events from the bus. A Deliver error unregisters the
// subscriber. Close must be idempotent.
type Subscriber interface {
	Deliver(Event) error
	Close()
}

const (
	kindChannel = "in-memory"
	kindCustom  = "custom"
)

type subscription struct {
	Subscriber
	kind string
}

// queueSubscriber feeds a buffered channel and drops events instead of
// blocking the publisher once the buffer is full
type queueSubscriber struct {
	events    chan Event
	mu        sync.RWMutex
	closed    bool
	onDropped func()
}

func newQueueSubscriber(size int, onDropped func()) *queueSubscriber {
	return &queueSubscriber{
		events:    make(chan Event, size),
		onDropped: onDropped,
	}
}

func (q *queueSubscriber) Deliver(evt Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil
	}
	select {
	case q.events <- evt:
	default:
		if q.onDropped != nil {
			q.onDropped()
		}
	}
	return nil
}

func (q *queueSubscriber) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
}

// EventBus fans out events to subscribers by event type. Chain notifications
// come in through it and governance events go out through it.
type EventBus struct {
	mu        sync.RWMutex
	subs      map[EventType]map[EventSubscriberId]subscription
	lastSubId EventSubscriberId
	metrics   *eventMetrics
	logger    *slog.Logger

	queue    chan Event
	workers  sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewEventBus creates an event bus and starts its async delivery workers.
// The bus must be stopped to release the workers.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subs:   make(map[EventType]map[EventSubscriberId]subscription),
		logger: logger.With("component", "event"),
		queue:  make(chan Event, AsyncQueueSize),
		stopCh: make(chan struct{}),
	}
	if promRegistry != nil {
		e.initMetrics(promRegistry)
	}
	e.workers.Add(AsyncWorkerPoolSize)
	for range AsyncWorkerPoolSize {
		go e.work()
	}
	return e
}

func (e *EventBus) work() {
	defer e.workers.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case evt := <-e.queue:
			e.Publish(evt.Type, evt)
		}
	}
}

func (e *EventBus) countError(eventType EventType, kind string) {
	if e.metrics != nil {
		e.metrics.deliveryErrors.WithLabelValues(string(eventType), kind).Inc()
	}
}

func (e *EventBus) add(eventType EventType, s subscription) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubId++
	byId, ok := e.subs[eventType]
	if !ok {
		byId = make(map[EventSubscriberId]subscription)
		e.subs[eventType] = byId
	}
	byId[e.lastSubId] = s
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType), s.kind).Inc()
	}
	return e.lastSubId
}

// Subscribe returns a channel receiving events of the given type. The
// channel is closed on Unsubscribe or Stop.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	q := newQueueSubscriber(EventQueueSize, func() {
		e.logger.Debug("subscriber queue full, dropping event", "type", eventType)
		e.countError(eventType, "dropped")
	})
	id := e.add(eventType, subscription{Subscriber: q, kind: kindChannel})
	return id, q.events
}

// SubscribeFunc calls handlerFunc for every event of the given type from a
// dedicated goroutine. A panicking handler does not stop delivery.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	id, events := e.Subscribe(eventType)
	go func() {
		for evt := range events {
			e.invoke(handlerFunc, evt)
		}
	}()
	return id
}

func (e *EventBus) invoke(handlerFunc EventHandlerFunc, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"event handler panic",
				"type", evt.Type,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	handlerFunc(evt)
}

// RegisterSubscriber adds a custom subscriber implementation
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.add(eventType, subscription{Subscriber: sub, kind: kindCustom})
}

// Unsubscribe removes a subscriber and closes it
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	s, ok := e.subs[eventType][subId]
	if ok {
		delete(e.subs[eventType], subId)
		if len(e.subs[eventType]) == 0 {
			delete(e.subs, eventType)
		}
		if e.metrics != nil {
			e.metrics.subscribers.WithLabelValues(string(eventType), s.kind).Dec()
		}
	}
	e.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Publish delivers an event to all current subscribers of its type
func (e *EventBus) Publish(eventType EventType, evt Event) {
	type target struct {
		id EventSubscriberId
		s  subscription
	}
	e.mu.RLock()
	targets := make([]target, 0, len(e.subs[eventType]))
	for id, s := range e.subs[eventType] {
		targets = append(targets, target{id: id, s: s})
	}
	e.mu.RUnlock()
	for _, t := range targets {
		err := safeDeliver(t.s, evt)
		if err == nil {
			continue
		}
		e.logger.Debug(
			"event delivery failed, removing subscriber",
			"type", eventType,
			"error", err,
		)
		e.countError(eventType, t.s.kind)
		e.Unsubscribe(eventType, t.id)
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

func safeDeliver(sub Subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Deliver(evt)
}

// PublishAsync queues an event for delivery by the worker pool. It returns
// false when the bus is stopped or the queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	select {
	case <-e.stopCh:
		return false
	default:
	}
	evt.Type = eventType
	select {
	case e.queue <- evt:
		return true
	default:
		e.logger.Warn("async event queue full, dropping event", "type", eventType)
		e.countError(eventType, "async-dropped")
		return false
	}
}

// Stop halts the async workers and closes every subscriber. Queued async
// events that were not yet delivered are discarded.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.workers.Wait()
	})
	e.mu.Lock()
	old := e.subs
	e.subs = make(map[EventType]map[EventSubscriberId]subscription)
	if e.metrics != nil {
		e.metrics.subscribers.Reset()
	}
	e.mu.Unlock()
	for _, byId := range old {
		for _, s := range byId {
			s.Close()
		}
	}
}
