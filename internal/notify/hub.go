// Package notify fans session snapshots out to stream subscribers. The hub is
// fire-and-forget: a slow or gone subscriber never delays the broadcaster,
// because the committed session mutation must not depend on delivery.
package notify

type subscription[TID comparable, TPayload any] struct {
	id      TID
	channel chan TPayload
}

type broadcast[TID comparable, TPayload any] struct {
	id      TID
	payload TPayload
}

// Hub is a channel-served broadcaster keyed by ID. All subscriber bookkeeping
// happens in the Start goroutine, so no locks are needed.
type Hub[TID comparable, TPayload any] struct {
	stopChannel        chan struct{}
	subscribeChannel   chan subscription[TID, TPayload]
	unsubscribeChannel chan subscription[TID, TPayload]
	broadcastChannel   chan broadcast[TID, TPayload]
}

// subscriberBuffer is how many undelivered payloads a subscriber may lag
// behind before broadcasts to it are dropped.
const subscriberBuffer = 8

func NewHub[TID comparable, TPayload any]() *Hub[TID, TPayload] {
	return &Hub[TID, TPayload]{
		stopChannel:        make(chan struct{}),
		subscribeChannel:   make(chan subscription[TID, TPayload]),
		unsubscribeChannel: make(chan subscription[TID, TPayload]),
		broadcastChannel:   make(chan broadcast[TID, TPayload]),
	}
}

// Start serves subscriptions and broadcasts. It blocks until Stop is called,
// so it should run in its own goroutine.
func (h *Hub[TID, TPayload]) Start() {
	subscribers := map[TID][]chan TPayload{}
	for {
		select {
		case <-h.stopChannel:
			for _, channels := range subscribers {
				for _, channel := range channels {
					close(channel)
				}
			}
			return

		case sub := <-h.subscribeChannel:
			subscribers[sub.id] = append(subscribers[sub.id], sub.channel)

		case sub := <-h.unsubscribeChannel:
			channels := subscribers[sub.id]
			for i, channel := range channels {
				if channel == sub.channel {
					subscribers[sub.id] = append(channels[:i], channels[i+1:]...)
					close(channel)
					break
				}
			}
			if len(subscribers[sub.id]) == 0 {
				delete(subscribers, sub.id)
			}

		case msg := <-h.broadcastChannel:
			for _, channel := range subscribers[msg.id] {
				select {
				case channel <- msg.payload:
				default:
					// Subscriber buffer is full; it catches up from the next
					// snapshot it does receive.
				}
			}
		}
	}
}

// Stop shuts the hub down and closes every subscriber channel.
func (h *Hub[TID, TPayload]) Stop() {
	close(h.stopChannel)
}

// Subscribe registers a new subscriber for the given ID and returns its
// channel. The channel is closed on Unsubscribe or Stop.
func (h *Hub[TID, TPayload]) Subscribe(id TID) chan TPayload {
	channel := make(chan TPayload, subscriberBuffer)
	select {
	case h.subscribeChannel <- subscription[TID, TPayload]{id: id, channel: channel}:
	case <-h.stopChannel:
		close(channel)
	}
	return channel
}

// Unsubscribe removes a subscriber channel. Safe to call with a channel the
// hub no longer tracks.
func (h *Hub[TID, TPayload]) Unsubscribe(id TID, channel chan TPayload) {
	select {
	case h.unsubscribeChannel <- subscription[TID, TPayload]{id: id, channel: channel}:
	case <-h.stopChannel:
	}
}

// Broadcast delivers a payload to every subscriber of the given ID. Delivery
// is best effort: subscribers with full buffers are skipped.
func (h *Hub[TID, TPayload]) Broadcast(id TID, payload TPayload) {
	select {
	case h.broadcastChannel <- broadcast[TID, TPayload]{id: id, payload: payload}:
	case <-h.stopChannel:
	}
}
