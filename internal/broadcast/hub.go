package broadcast

import "sync"

// Hub delivers changes to in-process subscribers (the SSE endpoint). Each
// subscriber gets a buffered channel; when the buffer is full the delta is
// dropped for that subscriber rather than blocking settlement.
type Hub struct {
	mu   sync.Mutex
	subs map[chan StockChange]struct{}
}

const subscriberBuffer = 16

func NewHub() *Hub {
	return &Hub{subs: make(map[chan StockChange]struct{})}
}

// Subscribe registers an observer. The returned cancel func must be called
// when the observer disconnects.
func (h *Hub) Subscribe() (<-chan StockChange, func()) {
	ch := make(chan StockChange, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) Publish(change StockChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- change:
		default: // slow observer, drop
		}
	}
}
