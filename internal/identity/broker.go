package identity

import (
	"sync"
)

// Broker fans auth events out to subscribers of the affected user.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(Event)
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[uint64]func(Event))}
}

// Subscribe registers handler for events about userID. An empty userID
// yields a subscription that never fires.
func (b *Broker) Subscribe(userID string, handler func(Event)) Subscription {
	if userID == "" || handler == nil {
		return noopSubscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[uint64]func(Event))
	}
	b.subs[userID][id] = handler

	return &brokerSubscription{broker: b, userID: userID, id: id}
}

// Publish delivers ev synchronously to every current subscriber of
// ev.UserID. Handlers must not block.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs[ev.UserID]))
	for _, h := range b.subs[ev.UserID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of live subscriptions for userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

func (b *Broker) remove(userID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs[userID], id)
	if len(b.subs[userID]) == 0 {
		delete(b.subs, userID)
	}
}

type brokerSubscription struct {
	broker *Broker
	userID string
	id     uint64
	once   sync.Once
}

func (s *brokerSubscription) Unsubscribe() {
	s.once.Do(func() { s.broker.remove(s.userID, s.id) })
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
