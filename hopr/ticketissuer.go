package hopr

import (
	goerrors "github.com/go-errors/errors"

	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/packet"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/ticket"
)

// ErrNoChannel is returned when no open channel connects this node to
// the requested next hop, so no ticket can be minted for it.
var ErrNoChannel = goerrors.Errorf("hopr: no channel to next hop")

// ticketIssuer satisfies packet.TicketIssuer by looking up the channel
// to nextHop in the current graph snapshot and minting against it
// through the shared ticket.Tracker (spec.md section 4.B's "ticket
// issuer hides channel/amount/win-probability policy from the packet
// codec").
type ticketIssuer struct {
	self    routing.NodeID
	onchain *hoprcrypto.OnchainKey
	tracker *ticket.Tracker
	graph   *routing.Graph
	policy  TicketPolicy
}

func newTicketIssuer(self routing.NodeID, onchain *hoprcrypto.OnchainKey, tracker *ticket.Tracker, graph *routing.Graph, policy TicketPolicy) *ticketIssuer {
	return &ticketIssuer{self: self, onchain: onchain, tracker: tracker, graph: graph, policy: policy}
}

func (ti *ticketIssuer) IssueTicket(nextHop hoprcrypto.OffchainPublicKey, remainingHops uint8, challenge hoprcrypto.HalfKeyChallenge) (ticket.SignedTicket, error) {
	nextHopID := packet.DerivePeerID(nextHop)

	snap := ti.graph.Current()
	var channelID ticket.ChannelID
	found := false
	for _, e := range snap.EdgesFrom(ti.self) {
		if e.To == nextHopID {
			channelID = e.ChannelID
			found = true
			break
		}
	}
	if !found {
		return ticket.SignedTicket{}, ErrNoChannel
	}

	return ti.tracker.CreateMultihopTicket(channelID, ti.onchain, remainingHops, ti.policy.UnitPrice, ti.policy.WinProb, challenge)
}
