package hopr

import (
	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/internal/wire"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/session"
)

// sendAlong builds and sends a fresh outgoing packet over an explicit
// forward path, minting whatever ticket the first hop needs and
// revealing it the same way relayForwarded does for a forwarded packet.
func (n *Node) sendAlong(hops []hoprcrypto.OffchainPublicKey, payload []byte) error {
	routing := packet.Routing{Kind: packet.RoutingForward, Hops: hops}
	out, _, err := packet.Encode(routing, payload, n.issuer)
	if err != nil {
		return err
	}
	if err := n.transportSend(out.NextHop, wire.Datagram(out.Data[:])); err != nil {
		return err
	}
	if out.IssuedHalfKey != nil {
		n.sendAck(out.NextHop, out.AckChallenge, *out.IssuedHalfKey)
	}
	return nil
}

// replyViaSurb sends payload back to whoever originally embedded a SURB
// under pseudonym, consuming one stored reply block. Used by a session
// responder, which has no forward path of its own to the initiator.
func (n *Node) replyViaSurb(pseudonym [10]byte, payload []byte) error {
	s, err := n.surbs.PopAnyFullSurb(pseudonym)
	if err != nil {
		return err
	}
	out, err := packet.EncodeWithSurb(s, payload)
	if err != nil {
		return err
	}
	return n.transportSend(out.NextHop, wire.Datagram(out.Data[:]))
}

// Connect opens a reliable session toward destination over a freshly
// selected path (spec.md section 6: "Node::connect_to").
func (n *Node) Connect(destination packet.PeerID, relayHops int) (*session.Session, error) {
	cfg := n.cfg.SessionConfig(packetPayloadBudget)
	return n.sessions.Connect(destination, relayHops, cfg)
}

// packetPayloadBudget is the plaintext space left for session framing
// once the tag prefix and envelope header are accounted for.
const packetPayloadBudget = packet.PayloadSize - tagSize - sessionDataHeaderSize
