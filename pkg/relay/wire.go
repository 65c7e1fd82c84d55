package relay

import (
	"encoding/binary"
	"errors"

	"github.com/silence-laboratories/dkls23/pkg/message"
)

// ErrMalformedFrame is returned when a relay-level frame cannot be parsed,
// surfaced per spec.md §7 as InvalidMessage.
var ErrMalformedFrame = errors.New("relay: malformed frame")

// FrameKind distinguishes the two wire-level message kinds spec.md §6
// describes: subscription requests and publications.
type FrameKind byte

const (
	// FrameAsk is a subscription: "send me the message with this id".
	FrameAsk FrameKind = 0
	// FramePub is a publication: a full signed or encrypted message.
	FramePub FrameKind = 1
)

// EncodeAsk builds a length-prefixed ASK frame for id with the given
// subscription lifetime in seconds.
func EncodeAsk(id message.MsgId, ttlSeconds uint32) []byte {
	buf := make([]byte, 1+message.MsgIdSize+4)
	buf[0] = byte(FrameAsk)
	copy(buf[1:1+message.MsgIdSize], id[:])
	binary.LittleEndian.PutUint32(buf[1+message.MsgIdSize:], ttlSeconds)
	return buf
}

// EncodePub wraps a fully-built message.Signed/Encrypted payload (which
// already begins with the fixed header) as a PUB frame.
func EncodePub(payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(FramePub)
	copy(buf[1:], payload)
	return buf
}

// DecodeFrame splits a relay frame into its kind and body.
func DecodeFrame(frame []byte) (FrameKind, []byte, error) {
	if len(frame) < 1 {
		return 0, nil, ErrMalformedFrame
	}
	return FrameKind(frame[0]), frame[1:], nil
}

// DecodeAsk parses the body of an ASK frame.
func DecodeAsk(body []byte) (message.MsgId, uint32, error) {
	var id message.MsgId
	if len(body) != message.MsgIdSize+4 {
		return id, 0, ErrMalformedFrame
	}
	copy(id[:], body[:message.MsgIdSize])
	ttl := binary.LittleEndian.Uint32(body[message.MsgIdSize:])
	return id, ttl, nil
}
