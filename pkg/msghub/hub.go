// Package msghub relays newly delivered message metadata to live inbox monitors.
package msghub

import (
	"container/ring"
	"context"
	"slices"
	"time"
)

// Length of msghub operation queue
const opChanLen = 100

// Message is the metadata broadcast for each delivery.
type Message struct {
	ID         string
	Sender     string
	Recipients []string
	Subject    string
	Date       time.Time
	Size       int64
}

// HasRecipient reports whether address is one of the message recipients.  address must already be
// normalized.
func (m Message) HasRecipient(address string) bool {
	return slices.Contains(m.Recipients, address)
}

// Listener receives the contents of the history buffer, followed by new messages and deletions.
type Listener interface {
	Receive(msg Message) error
	Delete(id string) error
}

// Hub relays messages on to its listeners
type Hub struct {
	// history buffer, points next Message to write.  Proceeding non-nil entry is oldest Message
	history   *ring.Ring
	listeners map[Listener]struct{} // listeners interested in new messages
	opChan    chan func(h *Hub)     // operations queued for this actor
}

// New constructs a new Hub which will cache historyLen messages in memory for playback to future
// listeners.  Start must be called to process queued operations.
func New(historyLen int) *Hub {
	return &Hub{
		history:   ring.New(historyLen),
		listeners: make(map[Listener]struct{}),
		opChan:    make(chan func(h *Hub), opChanLen),
	}
}

// Start Hub processing loop, it returns once ctx is canceled.
func (hub *Hub) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-hub.opChan:
			op(hub)
		}
	}
}

// Dispatch queues a message for broadcast by the hub.  The message will be placed into the
// history buffer and then relayed to all registered listeners.
func (hub *Hub) Dispatch(msg Message) {
	hub.opChan <- func(h *Hub) {
		if h.history == nil {
			return
		}
		h.history.Value = msg
		h.history = h.history.Next()

		// Deliver message to all listeners, removing listeners if they return an error.
		for l := range h.listeners {
			if err := l.Receive(msg); err != nil {
				delete(h.listeners, l)
			}
		}
	}
}

// Delete removes the message from the history buffer and notifies listeners.
func (hub *Hub) Delete(id string) {
	hub.opChan <- func(h *Hub) {
		if h.history == nil {
			return
		}
		kept := make([]Message, 0, h.history.Len())
		h.history.Do(func(v any) {
			if msg, ok := v.(Message); ok && msg.ID != id {
				kept = append(kept, msg)
			}
		})
		// Rebuild at the same size, oldest first; history then points at the next free slot.
		r := ring.New(h.history.Len())
		for _, msg := range kept {
			r.Value = msg
			r = r.Next()
		}
		h.history = r

		for l := range h.listeners {
			if err := l.Delete(id); err != nil {
				delete(h.listeners, l)
			}
		}
	}
}

// AddListener registers a listener to receive broadcasted messages, after playing back history.
func (hub *Hub) AddListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		if h.history != nil {
			h.history.Do(func(v any) {
				if msg, ok := v.(Message); ok {
					_ = l.Receive(msg)
				}
			})
		}
		h.listeners[l] = struct{}{}
	}
}

// RemoveListener deletes a listener registration, it will cease to receive messages.
func (hub *Hub) RemoveListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		delete(h.listeners, l)
	}
}

// Sync blocks until the msghub has processed its queue up to this point, useful
// for unit tests.
func (hub *Hub) Sync() {
	done := make(chan struct{})
	hub.opChan <- func(h *Hub) {
		close(done)
	}
	<-done
}
