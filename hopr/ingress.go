package hopr

import (
	"github.com/hoprnet/hopr-relay/ack"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/internal/wire"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/ticket"
)

// ingressLoop reads every inbound datagram and dispatches it by length:
// a full Sphinx packet, or an acknowledgement. It is the read half of
// spec.md section 4.L's per-peer loops, fed from a single shared
// transport-level channel rather than one goroutine per peer, since
// wire.Transport multiplexes every peer onto Incoming() itself.
func (n *Node) ingressLoop() error {
	in := n.cfg.Transport.Incoming()
	for {
		select {
		case <-n.quit:
			return nil
		case <-n.egCtx.Done():
			return nil
		case inbound, ok := <-in:
			if !ok {
				return nil
			}
			n.handleInbound(inbound)
		}
	}
}

func (n *Node) handleInbound(inbound wire.Inbound) {
	switch len(inbound.Data) {
	case packet.PacketWireSize:
		n.handlePacket(inbound.Peer, inbound.Data)
	case ackDatagramSize:
		n.handleAckDatagram(inbound.Peer, inbound.Data)
	default:
		log.Debugf("hopr: dropping datagram of unrecognized length %d from %x", len(inbound.Data), inbound.Peer)
	}
}

func (n *Node) handlePacket(from packet.PeerID, raw []byte) {
	if err := n.acquireCrypto(n.egCtx); err != nil {
		return
	}
	defer n.releaseCrypto()

	var data [packet.PacketWireSize]byte
	copy(data[:], raw)

	d, err := packet.Decode(data, n.cfg.Identity)
	if err != nil {
		log.Debugf("hopr: decoding packet from %x: %v", from, err)
		return
	}

	wasPresent, err := n.replay.CheckAndSet(d.Tag)
	if err != nil {
		log.Errorf("hopr: replay filter: %v", err)
		return
	}
	if wasPresent {
		log.Debugf("hopr: dropping replayed packet tag from %x", from)
		return
	}

	switch d.Kind {
	case packet.KindFinal:
		n.deliverFinal(from, d.Payload)
	case packet.KindForwarded:
		n.relayForwarded(from, d)
	}
}

// relayForwarded registers this hop's own stake in the ticket it just
// received, re-encodes the packet for the next hop, and reveals the
// issuer half-key of the ticket it just minted so the next hop can
// compute the response its own ticket needs once this one later arrives
// from further downstream (see ackwire.go and DESIGN.md: the
// acknowledgement for a ticket is sent by its issuer immediately after
// forwarding, not on a delayed round trip).
func (n *Node) relayForwarded(from packet.PeerID, d packet.Decoded) {
	if d.Ticket != nil && d.OwnKeyShare != nil {
		n.acks.RegisterAsRelayer(d.Ticket.Ticket.Challenge, *d.Ticket, *d.OwnKeyShare, from, n.cfg.AckTTL)
	}

	snap := n.graph.Current()
	nextNode, ok := snap.Node(d.NextHop)
	if !ok {
		log.Warnf("hopr: no known route to next hop %x, dropping", d.NextHop)
		return
	}

	remainingHops := ticket.PathPosition(d.Ticket.Ticket.Amount, n.cfg.Ticket.UnitPrice, n.cfg.Ticket.WinProb)
	out, err := packet.Reencode(d, n.issuer, nextNode.PublicKey, remainingHops)
	if err != nil {
		log.Errorf("hopr: re-encoding packet for %x: %v", d.NextHop, err)
		return
	}

	if err := n.transportSend(out.NextHop, wire.Datagram(out.Data[:])); err != nil {
		log.Debugf("hopr: forwarding to %x: %v", out.NextHop, err)
		return
	}

	if out.IssuedHalfKey != nil {
		n.sendAck(out.NextHop, out.AckChallenge, *out.IssuedHalfKey)
	}
}

func (n *Node) sendAck(to packet.PeerID, challenge hoprcrypto.HalfKeyChallenge, share hoprcrypto.HalfKey) {
	a := ack.Acknowledgement{Challenge: challenge, KeyShare: share}
	sig := n.cfg.Identity.Sign(signedAckMessage(a))
	if err := n.transportSend(to, wire.Datagram(marshalAckDatagram(a, sig))); err != nil {
		log.Debugf("hopr: sending acknowledgement to %x: %v", to, err)
	}
}

func (n *Node) handleAckDatagram(from packet.PeerID, raw []byte) {
	a, sig, err := unmarshalAckDatagram(raw)
	if err != nil {
		log.Debugf("hopr: bad acknowledgement from %x: %v", from, err)
		return
	}

	if snap := n.graph.Current(); snap != nil {
		if nd, ok := snap.Node(from); ok {
			if !nd.PublicKey.Verify(signedAckMessage(a), sig) {
				log.Warnf("hopr: acknowledgement from %x failed signature check", from)
				return
			}
		}
	}

	resolved, err := n.acks.Resolve(a)
	if err != nil {
		if err != ack.ErrNotFound {
			log.Debugf("hopr: resolving acknowledgement from %x: %v", from, err)
		}
		return
	}

	switch resolved.Role {
	case ack.WaitingAsRelayer:
		n.actions.Submit(n.redeemAction(resolved))
	case ack.WaitingAsSender:
		n.sessions.onDeliveryConfirmed(from)
	}
}

// deliverFinal hands a recovered application payload to the tag-routed
// dispatcher (ping, session-start, session data) spec.md section 6 names.
func (n *Node) deliverFinal(from packet.PeerID, payload []byte) {
	tag, body, err := splitTag(payload)
	if err != nil {
		log.Debugf("hopr: payload from %x missing application tag: %v", from, err)
		return
	}

	switch tag {
	case tagPing:
		n.handlePing(from, body)
	case tagSessionStart:
		n.handleSessionStart(from, body)
	case tagSessionData:
		n.handleSessionData(from, body)
	default:
		log.Debugf("hopr: dropping payload from %x with undefined tag %d", from, tag)
	}
}

func (n *Node) handlePing(from packet.PeerID, body []byte) {
	log.Debugf("hopr: ping from %x (%d bytes)", from, len(body))
}

func (n *Node) handleSessionStart(from packet.PeerID, body []byte) {
	p, err := unmarshalSessionStart(body)
	if err != nil {
		log.Debugf("hopr: bad session-start from %x: %v", from, err)
		return
	}
	n.sessions.dispatchSessionStart(from, p)
}

func (n *Node) handleSessionData(from packet.PeerID, body []byte) {
	e, err := unmarshalSessionDataEnvelope(body)
	if err != nil {
		log.Debugf("hopr: bad session-data from %x: %v", from, err)
		return
	}
	n.sessions.dispatchSessionData(from, e)
}
