/*
subscription.go - Balance change fan-out shared by store implementations

PURPOSE:
  A small per-user pub/sub hub. Store implementations publish a
  BalanceEvent after every committed balance mutation; subscribers get
  the stream promised by Store.SubscribeBalance.

DELIVERY SEMANTICS:
  Events are buffered per subscriber. A subscriber that falls behind has
  its OLDEST pending event coalesced away, never the newest: the balance
  stream is last-write-wins, so the latest persisted value always gets
  through. Closing is owned by the cancel func; publishing after cancel
  is a no-op for that subscriber.

SEE ALSO:
  - store.go: SubscribeBalance contract
  - ledger/store/memory.go, store/sqlite: Publishers
*/
package ledger

import "sync"

const subscriberBuffer = 32

// Hub fans balance events out to per-user subscribers. Safe for
// concurrent use. The zero value is not usable; call NewHub.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[UserID]map[int]chan BalanceEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[UserID]map[int]chan BalanceEvent)}
}

// Subscribe registers a new subscriber for user and returns its channel
// and a cancel func. The caller (the store) is responsible for sending
// the initial snapshot before any subsequent publish can race it, which
// it does while holding its own write lock.
func (h *Hub) Subscribe(user UserID) (chan BalanceEvent, CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan BalanceEvent, subscriberBuffer)
	id := h.next
	h.next++
	if h.subs[user] == nil {
		h.subs[user] = make(map[int]chan BalanceEvent)
	}
	h.subs[user][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[user]; ok {
				if c, ok := set[id]; ok {
					delete(set, id)
					close(c)
				}
				if len(set) == 0 {
					delete(h.subs, user)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of user. Coalesces the oldest
// pending event when a subscriber's buffer is full.
func (h *Hub) Publish(user UserID, ev BalanceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[user] {
		h.send(ch, ev)
	}
}

func (h *Hub) send(ch chan BalanceEvent, ev BalanceEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
			// Buffer full: drop the oldest pending event and retry.
			select {
			case <-ch:
			default:
			}
		}
	}
}
