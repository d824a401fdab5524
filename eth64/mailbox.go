package eth64

import (
	"sync"

	"github.com/ethsentry/sentry/rlpx"
)

// MailItem is one thing the per-peer writer goroutine must do: either send
// a negotiated subprotocol message, or tear the session down with the given
// disconnect reason. Exactly one of the two fields is set.
type MailItem struct {
	Message    *rlpx.OutboundMessage
	Disconnect *rlpx.DisconnectReason
}

// preludeFor builds the fixed sequence of items a freshly connected peer's
// mailbox starts with. If local status is known, the prelude is the Status
// handshake followed by an (initially empty) Transactions announcement,
// matching the eth/64 rule that Status must be the first subprotocol
// message. If no local status is available yet, the connection is not
// worth keeping open and the prelude is a single Disconnect(DisconnectRequested).
func preludeFor(status *StatusMessage) ([]MailItem, error) {
	if status == nil {
		reason := rlpx.DisconnectRequested
		return []MailItem{{Disconnect: &reason}}, nil
	}

	statusMsg, err := EncodeStatus(*status)
	if err != nil {
		return nil, err
	}
	emptyTxs, err := EncodeTransactions(TransactionsMessage{})
	if err != nil {
		return nil, err
	}
	return []MailItem{{Message: &statusMsg}, {Message: &emptyTxs}}, nil
}

// Mailbox is the per-peer outbound channel described by the server: a fixed
// prelude, followed by a capacity-1 queue of further items. The queue
// provides natural backpressure - Send blocks once the single slot is
// occupied until the writer goroutine drains it (or the mailbox is closed),
// rather than dropping the item.
type Mailbox struct {
	mu        sync.Mutex
	prelude   []MailItem
	pos       int
	queue     chan MailItem
	done      chan struct{}
	closeOnce sync.Once
}

func newMailbox(prelude []MailItem) *Mailbox {
	return &Mailbox{prelude: prelude, queue: make(chan MailItem, 1), done: make(chan struct{})}
}

// Send enqueues an item for delivery, blocking while the single queue slot
// is occupied. It returns false without sending if the mailbox is closed
// first.
func (m *Mailbox) Send(item MailItem) bool {
	select {
	case m.queue <- item:
		return true
	case <-m.done:
		return false
	}
}

// Next blocks until the next item is available: first draining the
// prelude in order, then pulling from the queue. It returns false once the
// mailbox has been closed and both the prelude and queue are exhausted.
func (m *Mailbox) Next() (MailItem, bool) {
	m.mu.Lock()
	if m.pos < len(m.prelude) {
		item := m.prelude[m.pos]
		m.pos++
		m.mu.Unlock()
		return item, true
	}
	m.mu.Unlock()

	select {
	case item := <-m.queue:
		return item, true
	case <-m.done:
		select {
		case item := <-m.queue:
			return item, true
		default:
			return MailItem{}, false
		}
	}
}

// Close ends the mailbox's stream; a subsequent Next drains whatever item is
// already queued and then returns ok=false. Safe to call concurrently with
// Send.
func (m *Mailbox) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}
