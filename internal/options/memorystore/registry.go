package memorystore

import (
	"errors"
	"sync"

	"riskfeed/internal/metrics"
)

var ErrNotConnected = errors.New("client not connected")

// Entry is a point-in-time view of one client and its subscription.
type Entry struct {
	Client       Client
	Subscription *Subscription // nil when not subscribed
}

// Registry is the set of connected clients together with their optional
// subscription. Both live in one map so a subscription can never outlive
// its connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[Client]*Subscription
	subs    int
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[Client]*Subscription),
	}
}

// Add registers a client. Returns false if it was already present.
func (r *Registry) Add(c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		return false
	}
	r.clients[c] = nil
	r.publish()
	return true
}

// Remove drops clients and their subscriptions, returning how many were
// actually present.
func (r *Registry) Remove(cs ...Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, c := range cs {
		sub, ok := r.clients[c]
		if !ok {
			continue
		}
		if sub != nil {
			r.subs--
		}
		delete(r.clients, c)
		removed++
	}
	if removed > 0 {
		r.publish()
	}
	return removed
}

// Subscribe sets or overwrites the client's subscription.
func (r *Registry) Subscribe(c Client, sub Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.clients[c]
	if !ok {
		return ErrNotConnected
	}
	if prev == nil {
		r.subs++
	}
	r.clients[c] = &sub
	r.publish()
	return nil
}

// Unsubscribe clears the client's subscription. Returns false if there was none.
func (r *Registry) Unsubscribe(c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.clients[c]
	if !ok || sub == nil {
		return false
	}
	r.clients[c] = nil
	r.subs--
	r.publish()
	return true
}

// Subscription returns a copy of the client's subscription, if any.
func (r *Registry) Subscription(c Client) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := r.clients[c]
	if sub == nil {
		return Subscription{}, false
	}
	return *sub, true
}

func (r *Registry) Connected(c Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[c]
	return ok
}

// Entries returns a stable copy of every client and its subscription.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.clients))
	for c, sub := range r.clients {
		e := Entry{Client: c}
		if sub != nil {
			cp := *sub
			e.Subscription = &cp
		}
		out = append(out, e)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs
}

// publish must be called with mu held.
func (r *Registry) publish() {
	metrics.ConnectedClients.Set(float64(len(r.clients)))
	metrics.ActiveSubscriptions.Set(float64(r.subs))
}
