package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventInventoryChanged = "inventory-changed"
	RealtimeEventTrainingChanged  = "training-changed"
	realtimeEventReady            = "ready"
	realtimeEventHeartbeat        = "heartbeat"
	realtimeSourceBackend         = "trainhub-api"
	defaultHeartbeatInterval      = 25 * time.Second
)

// RealtimeMessage notifies a principal that one of its views should refresh.
type RealtimeMessage struct {
	Principal string
	EventType string
	IDs       []string
	Operation string
	Timestamp time.Time
}

// RealtimeDispatcher fans change notifications out to per-principal subscribers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream for principal until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, principal string) (<-chan RealtimeMessage, func()) {
	if principal == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(principal, subscriber)
	var once sync.Once
	done := make(chan struct{})
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(principal, subscriber.id)
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-done:
		}
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to the subscribers of its principal. Slow subscribers drop messages.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Principal == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Principal]
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	deliver(copies, message)
}

// Broadcast delivers message to every subscriber. Trainings are visible to all principals.
func (d *RealtimeDispatcher) Broadcast(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0)
	for _, subscribers := range d.subscribers {
		for _, subscriber := range subscribers {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()
	deliver(copies, message)
}

func deliver(subscribers []*realtimeSubscriber, message RealtimeMessage) {
	for _, subscriber := range subscribers {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(principal string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[principal]; !ok {
		d.subscribers[principal] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[principal][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(principal string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[principal]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, principal)
		}
	}
	d.mu.Unlock()
}
