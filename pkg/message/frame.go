package message

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the size of the fixed header shared by every frame kind:
// msgId(32) | ttl(4) | flags(2), per spec.md §4.4.
const HeaderSize = MsgIdSize + 4 + 2

// ErrShortBuffer is returned when a buffer is too small to hold a header
// or a frame of the expected total size.
var ErrShortBuffer = errors.New("message: buffer too short")

// Header is the fixed prefix of every frame.
type Header struct {
	ID    MsgId
	TTL   uint32
	Flags uint16
}

// Encode writes the header into the first HeaderSize bytes of buf.
func (h *Header) Encode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrShortBuffer
	}
	copy(buf[:MsgIdSize], h.ID[:])
	binary.LittleEndian.PutUint32(buf[MsgIdSize:MsgIdSize+4], h.TTL)
	binary.LittleEndian.PutUint16(buf[MsgIdSize+4:HeaderSize], h.Flags)
	return nil
}

// DecodeHeader reads a header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrShortBuffer
	}
	copy(h.ID[:], buf[:MsgIdSize])
	h.TTL = binary.LittleEndian.Uint32(buf[MsgIdSize : MsgIdSize+4])
	h.Flags = binary.LittleEndian.Uint16(buf[MsgIdSize+4 : HeaderSize])
	return h, nil
}

// PeekMsgId reads just the leading MsgId out of a frame, used by the relay
// to route an incoming frame without fully decoding it (spec.md §4.5).
func PeekMsgId(buf []byte) (MsgId, error) {
	var id MsgId
	if len(buf) < MsgIdSize {
		return id, ErrShortBuffer
	}
	copy(id[:], buf[:MsgIdSize])
	return id, nil
}
