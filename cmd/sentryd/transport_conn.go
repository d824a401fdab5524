package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// frameConnTransport implements rlpx.Transport directly over a net.Conn
// using a plain 4-byte big-endian length prefix per frame. It does not
// perform the ECIES key exchange or the encrypted/MAC'd RLPx wire framing;
// those sit below rlpx.Transport and are out of scope for this module (see
// rlpx.Transport's doc comment). This is the simplest thing that lets
// sentryd accept a real TCP connection end to end for manual testing.
type frameConnTransport struct {
	conn net.Conn
}

func newFrameConnTransport(conn net.Conn) *frameConnTransport {
	return &frameConnTransport{conn: conn}
}

const maxFrameWireSize = 17 * 1024 * 1024 // a little above the 16 MiB payload cap

func (t *frameConnTransport) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameWireSize {
		return nil, fmt.Errorf("sentryd: frame of %d bytes exceeds wire cap", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *frameConnTransport) WriteFrame(payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := t.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(payload)
	return err
}

func (t *frameConnTransport) Close() error {
	return t.conn.Close()
}
