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
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	EventQueueSize = 20
	AsyncQueueSize = 1000
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

type eventMetrics struct {
	published   *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

// EventBus provides typed publish/subscribe event delivery between
// components. Subscribers receive events on buffered channels; a
// producer that must not block can use PublishAsync, which hands the
// event to a background dispatch worker.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]chan Event
	metrics     *eventMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex

	asyncQueue chan Event
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewEventBus creates a new event bus. Both arguments may be nil, which
// disables metrics and logging respectively.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]chan Event),
		logger:      logger,
		asyncQueue:  make(chan Event, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		promautoFactory := promauto.With(promRegistry)
		e.metrics = &eventMetrics{
			published: promautoFactory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "launchpad_events_published_total",
					Help: "total events published by type",
				},
				[]string{"type"},
			),
			subscribers: promautoFactory.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "launchpad_event_subscribers",
					Help: "current subscriber count by type",
				},
				[]string{"type"},
			),
		}
	}
	e.wg.Add(1)
	go e.asyncWorker()
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case evt, ok := <-e.asyncQueue:
			if !ok {
				return
			}
			e.Publish(evt.Type, evt)
		}
	}
}

// Subscribe allows a consumer to receive events of a particular type via
// a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subId := e.lastSubId + 1
	e.lastSubId = subId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]chan Event)
	}
	evtCh := make(chan Event, EventQueueSize)
	e.subscribers[eventType][subId] = evtCh
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, evtCh
}

// SubscribeFunc allows a consumer to receive events of a particular type
// via a callback function
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for {
			evt, ok := <-evtCh
			if !ok {
				return
			}
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an
// existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	evtTypeSubs, ok := e.subscribers[eventType]
	if !ok {
		return
	}
	evtCh, ok := evtTypeSubs[subId]
	if !ok {
		return
	}
	delete(evtTypeSubs, subId)
	if len(evtTypeSubs) == 0 {
		delete(e.subscribers, eventType)
	}
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
	}
	close(evtCh)
}

// Publish sends an event of a particular type to all current subscribers.
// Delivery blocks on a full subscriber channel, preserving per-subscriber
// ordering.
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	subs := make([]chan Event, 0, len(e.subscribers[eventType]))
	for _, evtCh := range e.subscribers[eventType] {
		subs = append(subs, evtCh)
	}
	e.mu.RUnlock()
	for _, evtCh := range subs {
		e.deliver(evtCh, evt)
	}
	if e.metrics != nil {
		e.metrics.published.WithLabelValues(string(eventType)).Inc()
	}
}

// deliver sends on a subscriber channel, recovering the send-on-closed
// panic that can occur when a subscriber unsubscribes mid-publish
func (e *EventBus) deliver(evtCh chan Event, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Warn(
					"dropped event for closed subscriber",
					"component", "eventbus",
					"type", string(evt.Type),
				)
			}
		}
	}()
	evtCh <- evt
}

// PublishAsync queues an event for delivery by the background worker
// without blocking the caller. Events are dropped with a warning if the
// queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) {
	evt.Type = eventType
	select {
	case e.asyncQueue <- evt:
	default:
		if e.logger != nil {
			e.logger.Warn(
				"async event queue full, dropping event",
				"component", "eventbus",
				"type", string(eventType),
			)
		}
	}
}

// Stop shuts down the async dispatch worker. Channel subscribers remain
// open until unsubscribed.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
}
