package rlpx

import (
	"errors"
	"io"
	"testing"
)

// chanTransport is an in-memory Transport backed by channels, used to wire
// two PeerStreams together without touching a real socket.
type chanTransport struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
}

func newTransportPair() (*chanTransport, *chanTransport) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	a := &chanTransport{in: ba, out: ab, closed: make(chan struct{})}
	b := &chanTransport{in: ab, out: ba, closed: make(chan struct{})}
	return a, b
}

func (t *chanTransport) ReadFrame() ([]byte, error) {
	select {
	case f, ok := <-t.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-t.closed:
		return nil, io.ErrClosedPipe
	}
}

func (t *chanTransport) WriteFrame(payload []byte) error {
	select {
	case t.out <- payload:
		return nil
	case <-t.closed:
		return io.ErrClosedPipe
	}
}

func (t *chanTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return nil
}

func ethLikeCaps() Capabilities {
	return Capabilities{{Name: "eth", Version: 64, Length: 8}}
}

func helloA() HelloInfo {
	return HelloInfo{ClientID: "sentry/a", ListenPort: 30303, NodeID: []byte("node-a"), Caps: ethLikeCaps()}
}

func helloB() HelloInfo {
	return HelloInfo{ClientID: "sentry/b", ListenPort: 30304, NodeID: []byte("node-b"), Caps: ethLikeCaps()}
}

func TestHandshakeSharesCapability(t *testing.T) {
	ta, tb := newTransportPair()

	type result struct {
		peer *PeerStream
		err  error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() { p, err := Handshake(ta, helloA()); resA <- result{p, err} }()
	go func() { p, err := Handshake(tb, helloB()); resB <- result{p, err} }()

	ra, rb := <-resA, <-resB
	if ra.err != nil || rb.err != nil {
		t.Fatalf("handshake failed: a=%v b=%v", ra.err, rb.err)
	}
	if len(ra.peer.SharedCapabilities()) != 1 || ra.peer.SharedCapabilities()[0].Name != "eth" {
		t.Fatalf("expected shared [eth], got %v", ra.peer.SharedCapabilities())
	}
	if ra.peer.Remote.ClientID != "sentry/b" {
		t.Fatalf("unexpected remote client id %q", ra.peer.Remote.ClientID)
	}
}

func TestHandshakeNoSharedCapabilitiesDisconnectsAsUseless(t *testing.T) {
	ta, tb := newTransportPair()

	localA := HelloInfo{ClientID: "a", NodeID: []byte("a"), Caps: Capabilities{{Name: "eth", Version: 64, Length: 8}}}
	localB := HelloInfo{ClientID: "b", NodeID: []byte("b"), Caps: Capabilities{{Name: "les", Version: 3, Length: 8}}}

	type result struct {
		peer *PeerStream
		err  error
	}
	resA := make(chan result, 1)
	resB := make(chan result, 1)
	go func() { p, err := Handshake(ta, localA); resA <- result{p, err} }()
	go func() { p, err := Handshake(tb, localB); resB <- result{p, err} }()

	ra, rb := <-resA, <-resB
	if ra.err != ErrNoSharedCapabilities || rb.err != ErrNoSharedCapabilities {
		t.Fatalf("expected ErrNoSharedCapabilities on both sides, got a=%v b=%v", ra.err, rb.err)
	}

	raw, err := tb.ReadFrame()
	if err != nil {
		t.Fatalf("expected a disconnect frame, got error: %v", err)
	}
	msg, err := DecodeFrame(raw)
	if err != nil || msg.ID != DisconnectID {
		t.Fatalf("expected disconnect frame, got id=%d err=%v", msg.ID, err)
	}
	reason, err := decodeDisconnect(msg.Payload)
	if err != nil || reason != DisconnectUselessPeer {
		t.Fatalf("expected DisconnectUselessPeer, got %v (err %v)", reason, err)
	}
}

func TestPingIsAnsweredTransparently(t *testing.T) {
	ta, tb := newTransportPair()
	resA := make(chan *PeerStream, 1)
	resB := make(chan *PeerStream, 1)
	go func() { p, _ := Handshake(ta, helloA()); resA <- p }()
	go func() { p, _ := Handshake(tb, helloB()); resB <- p }()
	pa, pb := <-resA, <-resB
	if pa == nil || pb == nil {
		t.Fatal("handshake failed")
	}

	if err := pa.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	msgCh := make(chan PeerMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		m, err := pb.Next()
		msgCh <- m
		errCh <- err
	}()

	// pb's Next loop consumes the Ping internally and replies with Pong,
	// which pa should never surface through its own Next.
	raw, err := ta.ReadFrame()
	if err != nil {
		t.Fatalf("expected pong frame: %v", err)
	}
	msg, err := DecodeFrame(raw)
	if err != nil || msg.ID != PongID {
		t.Fatalf("expected pong (id %d), got id=%d err=%v", PongID, msg.ID, err)
	}
}

func TestSendRoutesToNegotiatedIDRange(t *testing.T) {
	ta, tb := newTransportPair()
	resA := make(chan *PeerStream, 1)
	resB := make(chan *PeerStream, 1)
	go func() { p, _ := Handshake(ta, helloA()); resA <- p }()
	go func() { p, _ := Handshake(tb, helloB()); resB <- p }()
	pa, pb := <-resA, <-resB
	if pa == nil || pb == nil {
		t.Fatal("handshake failed")
	}

	if err := pa.Send(OutboundMessage{Capability: "eth", ID: 3, Payload: []byte("status")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := pb.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got.Capability != "eth" || got.ID != 3 || string(got.Payload) != "status" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestSendOnUnknownCapabilityIsSilentlyDropped(t *testing.T) {
	ta, tb := newTransportPair()
	resA := make(chan *PeerStream, 1)
	resB := make(chan *PeerStream, 1)
	go func() { p, _ := Handshake(ta, helloA()); resA <- p }()
	go func() { p, _ := Handshake(tb, helloB()); resB <- p }()
	pa, pb := <-resA, <-resB
	_ = pb

	if err := pa.Send(OutboundMessage{Capability: "les", ID: 0, Payload: []byte("x")}); err != nil {
		t.Fatalf("expected silent drop, got error: %v", err)
	}
	select {
	case raw := <-tb.in:
		t.Fatalf("did not expect a frame to be sent, got %v", raw)
	default:
	}
}

func TestDisconnectLatchIsMonotonic(t *testing.T) {
	ta, tb := newTransportPair()
	resA := make(chan *PeerStream, 1)
	resB := make(chan *PeerStream, 1)
	go func() { p, _ := Handshake(ta, helloA()); resA <- p }()
	go func() { p, _ := Handshake(tb, helloB()); resB <- p }()
	pa := <-resA
	<-resB

	if pa.IsDisconnected() {
		t.Fatal("should not be disconnected yet")
	}
	if err := pa.Disconnect(DisconnectRequested); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if !pa.IsDisconnected() {
		t.Fatal("should be disconnected")
	}
	if err := pa.Disconnect(DisconnectRequested); err != nil {
		t.Fatalf("second disconnect should be a harmless no-op, got %v", err)
	}
	if err := pa.Send(OutboundMessage{Capability: "eth", ID: 0}); !errors.Is(err, ErrPeerDisconnected) {
		t.Fatalf("expected ErrPeerDisconnected after latch, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	frame, err := EncodeFrame(0x12, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ID != 0x12 || string(msg.Payload) != string(payload) {
		t.Fatalf("round trip mismatch: %+v", msg)
	}
}

func TestOversizeFrameRejected(t *testing.T) {
	huge := make([]byte, maxUncompressedPayload+1)
	frame, err := EncodeFrame(0x10, huge)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = DecodeFrame(frame)
	var tooLarge *FrameTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected FrameTooLargeError, got %v", err)
	}
}

func TestCapabilityIDPartitionIsInjective(t *testing.T) {
	caps := Capabilities{
		{Name: "eth", Version: 64, Length: 8},
		{Name: "les", Version: 3, Length: 21},
		{Name: "snap", Version: 1, Length: 8},
	}
	caps.sortByName()
	seen := map[uint64]CapabilityName{}
	for _, c := range caps {
		for local := uint64(0); local < c.Length; local++ {
			wire := caps.wireID(c.Name, local)
			if owner, ok := seen[wire]; ok {
				t.Fatalf("wire id %d assigned to both %s and %s", wire, owner, c.Name)
			}
			seen[wire] = c.Name
			gotCap, gotLocal, ok := caps.resolve(wire)
			if !ok || gotCap.Name != c.Name || gotLocal != local {
				t.Fatalf("resolve(%d) = %v,%v,%v want %s,%d,true", wire, gotCap.Name, gotLocal, ok, c.Name, local)
			}
		}
	}
}

func TestSharedCapabilitiesKeepsHighestVersion(t *testing.T) {
	local := Capabilities{
		{Name: "eth", Version: 63, Length: 8},
		{Name: "eth", Version: 64, Length: 8},
		{Name: "les", Version: 2, Length: 21},
	}
	remote := []CapabilityMessage{
		{Name: "eth", Version: 63},
		{Name: "eth", Version: 64},
	}
	shared := sharedCapabilities(local, remote)
	if len(shared) != 1 || shared[0].Name != "eth" || shared[0].Version != 64 {
		t.Fatalf("expected only eth/64, got %v", shared)
	}
}
