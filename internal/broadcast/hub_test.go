package broadcast

import "testing"

func TestHubDeliversToSubscribers(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	h.Publish(StockChange{ProductID: "P", NewStock: 4})

	for i, ch := range []<-chan StockChange{ch1, ch2} {
		select {
		case got := <-ch:
			if got.ProductID != "P" || got.NewStock != 4 {
				t.Errorf("subscriber %d got %+v", i, got)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	// Publishing past the buffer must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(StockChange{ProductID: "P", NewStock: i})
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered = %d, want %d (overflow dropped)", got, subscriberBuffer)
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	cancel()
	cancel() // idempotent

	h.Publish(StockChange{ProductID: "P", NewStock: 1})

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestFanout(t *testing.T) {
	h1 := NewHub()
	h2 := NewHub()
	ch1, cancel1 := h1.Subscribe()
	ch2, cancel2 := h2.Subscribe()
	defer cancel1()
	defer cancel2()

	Fanout{h1, h2}.Publish(StockChange{ProductID: "Q", NewStock: 2})

	if len(ch1) != 1 || len(ch2) != 1 {
		t.Errorf("fanout delivery = %d/%d, want 1/1", len(ch1), len(ch2))
	}
}
