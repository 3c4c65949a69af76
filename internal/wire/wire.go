// Package wire names the external transport collaborator the core wires
// against but never implements: libp2p peer connectivity, NAT traversal,
// and opaque datagram delivery live entirely outside this module
// (spec.md section 1, "libp2p transport and peer discovery").
package wire

import (
	"context"

	"github.com/hoprnet/hopr-relay/packet"
)

// Datagram is one opaque wire-format payload exchanged with a peer: a
// Sphinx packet-plus-ticket, or an acknowledgement (spec.md section 6).
type Datagram []byte

// Inbound pairs a received datagram with the peer it arrived from.
type Inbound struct {
	Peer packet.PeerID
	Data Datagram
}

// Transport is the external collaborator providing peer-to-peer datagram
// delivery (spec.md section 6: "WireTransport: send(peer, datagram),
// incoming() -> stream<(peer, datagram)>"). A concrete implementation
// (libp2p or otherwise) lives outside this module; the core only ever
// holds this interface.
type Transport interface {
	// Send transmits one opaque datagram toward peer. Returns once the
	// datagram has been handed off to the transport, not once delivered.
	Send(ctx context.Context, peer packet.PeerID, datagram Datagram) error

	// Incoming returns the channel of datagrams received from any peer.
	// Closed when the transport shuts down.
	Incoming() <-chan Inbound
}
