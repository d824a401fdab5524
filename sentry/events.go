package sentry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

// OutboundEvent is one message of the /peers/events websocket stream: a
// record of a message this node actually wrote to a peer's wire.
type OutboundEvent struct {
	Peer       string `json:"peer"`
	Capability string `json:"capability"`
	ID         uint64 `json:"id"`
}

// Broadcaster fans a stream of OutboundEvents out to every currently
// subscribed websocket client. Subscribers are bounded channels; an event
// that a too-slow client's channel has no room for is dropped for that
// client rather than allowed to stall publishers. The client stays
// subscribed.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan OutboundEvent]struct{}
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan OutboundEvent]struct{})}
}

// Subscribe registers a new listener and returns it along with an unsubscribe
// function the caller must invoke when done.
func (b *Broadcaster) Subscribe() (chan OutboundEvent, func()) {
	ch := make(chan OutboundEvent, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
		close(ch)
	}
}

// Publish fans out ev to every current subscriber, dropping it for any
// subscriber whose channel is currently full.
func (b *Broadcaster) Publish(ev OutboundEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			log.Debug("sentry: dropping outbound event for slow subscriber")
		}
	}
}

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const eventWriteTimeout = 10 * time.Second

// ServeEvents upgrades the connection to a websocket and streams every
// OutboundEvent published from this point on as one JSON-encoded text
// message per event, until the client disconnects.
func (s *HTTPControlServer) ServeEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("sentry: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	for ev := range ch {
		conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		body, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}
