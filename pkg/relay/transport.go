// Package relay implements the filtered message relay of spec.md §4.5: a
// pull-based (expect/recv) wrapper around an abstract duplex byte stream,
// grounded directly on original_source/src/proto/tags.rs's
// FilteredMsgRelay/Round, translated from its async Rust shape into Go's
// blocking-call-over-channel idiom (the teacher's own handler.go instead
// uses a push/Accept-based dispatch loop, which spec.md's pull model
// explicitly supersedes — see DESIGN.md's pkg/relay section).
package relay

import "context"

// Transport is the abstract duplex stream the relay is built on: ASK
// requests and outgoing frames go out through Send, incoming frames (both
// requested and unsolicited publications) come back through Recv.
type Transport interface {
	// Send writes one frame (an ASK request or a PUB payload) to the relay.
	Send(ctx context.Context, frame []byte) error

	// Recv blocks for the next frame from the relay, or returns ctx.Err()
	// if ctx is done first.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the underlying connection.
	Close() error
}
