package message

import "github.com/silence-laboratories/dkls23/pkg/hash"

// MsgIdSize is the fixed length of a message id.
const MsgIdSize = 32

// MsgId is SHA-256(instance, senderVK, receiverVK|broadcastSentinel, tag),
// per spec.md §4.4. It doubles as the message's routing key in the relay
// (pkg/relay) and as the additional-authenticated-data anchor baked into
// every header.
type MsgId [MsgIdSize]byte

// ComputeMsgId derives a MsgId. Pass receiverVK = nil for a broadcast
// message; BroadcastSentinel is substituted in that case so a broadcast to
// "nobody in particular" can never collide with a genuine p2p receiver key.
func ComputeMsgId(instance, senderVK, receiverVK []byte, tag Tag) MsgId {
	r := receiverVK
	if r == nil {
		r = BroadcastSentinel
	}
	digest := hash.SHA256Label(instance, senderVK, r, tagBytes(tag))
	var id MsgId
	copy(id[:], digest)
	return id
}

func tagBytes(tag Tag) []byte {
	return []byte{byte(tag), byte(tag >> 8)}
}

// Bytes returns the id as a byte slice.
func (id MsgId) Bytes() []byte { return id[:] }
