package identity

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerDeliversToUserOnly(t *testing.T) {
	b := NewBroker()

	var alice, bob int32
	subA := b.Subscribe("alice", func(Event) { atomic.AddInt32(&alice, 1) })
	defer subA.Unsubscribe()
	subB := b.Subscribe("bob", func(Event) { atomic.AddInt32(&bob, 1) })
	defer subB.Unsubscribe()

	b.Publish(Event{Kind: SignedOut, UserID: "alice"})

	assert.Equal(t, int32(1), atomic.LoadInt32(&alice))
	assert.Equal(t, int32(0), atomic.LoadInt32(&bob))
}

func TestBrokerUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker()

	var calls int32
	sub := b.Subscribe("alice", func(Event) { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 1, b.Subscribers("alice"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.Subscribers("alice"))

	b.Publish(Event{Kind: SignedIn, UserID: "alice"})
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestBrokerAnonymousSubscriptionNeverFires(t *testing.T) {
	b := NewBroker()

	fired := false
	sub := b.Subscribe("", func(Event) { fired = true })
	b.Publish(Event{Kind: SignedIn})
	sub.Unsubscribe()

	assert.False(t, fired)
	assert.Equal(t, 0, b.Subscribers(""))
}

func TestMetadataRole(t *testing.T) {
	var empty Metadata
	assert.Equal(t, "", empty.Role())

	m := Metadata{"role": "trainer", "full_name": "Kim"}
	assert.Equal(t, "trainer", m.Role())

	c := m.Clone()
	c["role"] = "member"
	assert.Equal(t, "trainer", m.Role())
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("firebase", Options{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
