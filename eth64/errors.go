package eth64

import (
	"fmt"

	"github.com/ethsentry/sentry/rlpx"
)

// errCode enumerates the reasons a peer can be rejected during or after the
// Status handshake.
type errCode int

const (
	ErrNoStatusMsg errCode = iota
	ErrDecode
	ErrNetworkIDMismatch
	ErrGenesisMismatch
	ErrProtocolVersionMismatch
	ErrForkIDRejected
)

var errCodeNames = map[errCode]string{
	ErrNoStatusMsg:             "first message was not Status",
	ErrDecode:                  "invalid message",
	ErrNetworkIDMismatch:       "network id mismatch",
	ErrGenesisMismatch:         "genesis block mismatch",
	ErrProtocolVersionMismatch: "protocol version mismatch",
	ErrForkIDRejected:          "fork id rejected",
}

func (e errCode) String() string {
	if s, ok := errCodeNames[e]; ok {
		return s
	}
	return "unknown error"
}

// protocolError is a concrete, inspectable error type for handshake and
// admission failures, in the style of the upstream eth package's errResp.
type protocolError struct {
	code    errCode
	message string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("%v: %s", e.code, e.message)
}

func (e *protocolError) Code() errCode { return e.code }

func errResp(code errCode, format string, v ...interface{}) error {
	return &protocolError{code: code, message: fmt.Sprintf(format, v...)}
}

// DisconnectReasonFor maps an error returned from HandleInbound to the
// rlpx.DisconnectReason the caller should close the session with. A fork id
// rejection is a useless-peer condition; every other admission failure is a
// protocol breach.
func DisconnectReasonFor(err error) rlpx.DisconnectReason {
	pe, ok := err.(*protocolError)
	if ok && pe.code == ErrForkIDRejected {
		return rlpx.DisconnectUselessPeer
	}
	return rlpx.DisconnectProtocolError
}
