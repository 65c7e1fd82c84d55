package relay

import (
	"context"
	"errors"

	"github.com/silence-laboratories/dkls23/pkg/message"
	"github.com/silence-laboratories/dkls23/pkg/party"
)

// ErrAborted names the abort condition of spec.md §4.5. Recv/Round do not
// return it: they report a message carrying the reserved abort tag through
// their isAbort result, and the caller turns that into its own abort error.
var ErrAborted = errors.New("relay: protocol aborted by peer")

// ErrClosed is returned once the underlying transport is exhausted while
// a message is still outstanding.
var ErrClosed = errors.New("relay: transport closed")

type expectation struct {
	party party.ParticipantIndex
	tag   message.Tag
}

type bufferedMessage struct {
	body  []byte
	party party.ParticipantIndex
	tag   message.Tag
}

// FilteredRelay wraps a Transport and filters incoming PUB frames against
// a table of currently "asked" message ids, exactly mirroring
// original_source/src/proto/tags.rs's FilteredMsgRelay: callers declare
// what they expect (expect), then block for it (recv); anything that
// arrives for a later round is held in an in-memory buffer instead of
// being dropped, and anything nobody ever asked for is discarded.
type FilteredRelay struct {
	transport Transport
	expected  map[message.MsgId]expectation
	inBuf     []bufferedMessage
}

// NewFilteredRelay wraps transport.
func NewFilteredRelay(transport Transport) *FilteredRelay {
	return &FilteredRelay{
		transport: transport,
		expected:  make(map[message.MsgId]expectation),
	}
}

// Expect issues an ASK frame for id and records that it is expected to
// arrive from the given sender, tagged tag.
func (r *FilteredRelay) Expect(ctx context.Context, id message.MsgId, tag message.Tag, sender party.ParticipantIndex, ttlSeconds uint32) error {
	if err := r.transport.Send(ctx, EncodeAsk(id, ttlSeconds)); err != nil {
		return err
	}
	r.expected[id] = expectation{party: sender, tag: tag}
	return nil
}

// PutBack re-adds a message to the expectation table, without re-issuing
// the ASK frame, so a subsequent Recv under the same tag will look for it
// again. Used when a message is received but fails verification/decryption
// — spec.md §4.5 requires it be put back, not dropped, to tolerate
// reordering of messages sharing a round's tag.
func (r *FilteredRelay) PutBack(id message.MsgId, tag message.Tag, sender party.ParticipantIndex) {
	r.expected[id] = expectation{party: sender, tag: tag}
}

// Send publishes a fully-built message frame (already produced by
// message.BuildSigned / message.EncryptMessage) to the relay.
func (r *FilteredRelay) Send(ctx context.Context, payload []byte) error {
	return r.transport.Send(ctx, EncodePub(payload))
}

// Recv returns the next message whose expected tag is tag (or the
// reserved abort tag), per spec.md §4.5. Messages expected for a later
// round are queued in the in-buffer rather than dropped; messages nobody
// is expecting are discarded.
func (r *FilteredRelay) Recv(ctx context.Context, tag message.Tag) ([]byte, party.ParticipantIndex, bool, error) {
	for i, buffered := range r.inBuf {
		if buffered.tag == tag {
			r.inBuf = append(r.inBuf[:i], r.inBuf[i+1:]...)
			return buffered.body, buffered.party, false, nil
		}
	}

	for {
		frame, err := r.transport.Recv(ctx)
		if err != nil {
			return nil, 0, false, err
		}
		kind, body, err := DecodeFrame(frame)
		if err != nil || kind != FramePub {
			continue
		}
		id, err := message.PeekMsgId(body)
		if err != nil {
			continue
		}
		exp, ok := r.expected[id]
		if !ok {
			continue
		}
		delete(r.expected, id)

		if exp.tag == message.AbortTag {
			return body, exp.party, true, nil
		}
		if exp.tag == tag {
			return body, exp.party, false, nil
		}
		r.inBuf = append(r.inBuf, bufferedMessage{body: body, party: exp.party, tag: exp.tag})
	}
}

// Participants is the minimal slice of spec.md §4.6's ProtocolParticipant
// the relay needs to fan out an expect() call across every other party.
type Participants interface {
	ParticipantIndex() party.ParticipantIndex
	AllOtherParties() []party.ParticipantIndex
	// MsgIDFrom computes the id of a message sent by sender (p2p to this
	// participant, or broadcast), the form Recv/Expect needs since the
	// relay is waiting on messages FROM each peer, not messages it sends.
	MsgIDFrom(sender party.ParticipantIndex, p2p bool, tag message.Tag) message.MsgId
	MessageTTLSeconds() uint32
}

// AskMessages issues Expect for every other participant under tag, and
// returns how many were asked (the caller's round count).
func (r *FilteredRelay) AskMessages(ctx context.Context, setup Participants, tag message.Tag, p2p bool) (int, error) {
	return r.AskMessagesFrom(ctx, setup, tag, setup.AllOtherParties(), p2p)
}

// AskMessagesFrom is AskMessages restricted to an explicit set of senders
// (used by quorum-change, which asks only the old or only the new set).
func (r *FilteredRelay) AskMessagesFrom(ctx context.Context, setup Participants, tag message.Tag, from []party.ParticipantIndex, p2p bool) (int, error) {
	self := setup.ParticipantIndex()
	count := 0
	for _, sender := range from {
		if sender == self {
			continue
		}
		id := setup.MsgIDFrom(sender, p2p, tag)
		if err := r.Expect(ctx, id, tag, sender, setup.MessageTTLSeconds()); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Round is a bounded iterator over `count` messages all expected under the
// same tag, mirroring tags.rs's Round.
type Round struct {
	relay *FilteredRelay
	tag   message.Tag
	count int
}

// NewRound starts a round expecting count more messages under tag.
func (r *FilteredRelay) NewRound(count int, tag message.Tag) *Round {
	return &Round{relay: r, tag: tag, count: count}
}

// Recv returns the next message in the round, or ok=false once count
// messages have been delivered.
func (round *Round) Recv(ctx context.Context) (body []byte, sender party.ParticipantIndex, isAbort bool, ok bool, err error) {
	if round.count <= 0 {
		return nil, 0, false, false, nil
	}
	body, sender, isAbort, err = round.relay.Recv(ctx, round.tag)
	if err != nil {
		return nil, 0, false, false, err
	}
	round.count--
	return body, sender, isAbort, true, nil
}

// PutBack returns a message to the relay's expectation table and
// increments the round's remaining count back up, so the round keeps
// waiting for a replacement.
func (round *Round) PutBack(id message.MsgId, tag message.Tag, sender party.ParticipantIndex) {
	round.relay.PutBack(id, tag, sender)
	round.count++
}
