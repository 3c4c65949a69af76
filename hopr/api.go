package hopr

import (
	"context"
	"math/big"

	"github.com/hoprnet/hopr-relay/action"
	"github.com/hoprnet/hopr-relay/hoprcrypto"
	"github.com/hoprnet/hopr-relay/routing"
	"github.com/hoprnet/hopr-relay/ticket"
)

// OpenChannel submits a FundChannel action opening a new outgoing channel
// toward dest with the given initial balance (spec.md section 6:
// "Node::open_channel(dest, balance)").
func (n *Node) OpenChannel(dest hoprcrypto.Address, balance *big.Int) *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:        action.FundChannel,
		Destination: dest,
		Amount:      balance,
		Timeout:     n.cfg.ActionTimeout,
	})
}

// FundChannel submits a FundChannel action topping up an existing channel
// (spec.md section 6: "fund_channel(id, balance)").
func (n *Node) FundChannel(id ticket.ChannelID, balance *big.Int) *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:      action.FundChannel,
		ChannelID: id,
		Amount:    balance,
		Timeout:   n.cfg.ActionTimeout,
	})
}

// CloseChannelByID submits a CloseChannelInit action against id (spec.md
// section 6: "close_channel_by_id(id)"). The closure reaches
// PendingToClose on-chain first; FinalizeChannelClose must be called
// after the channel's closure notice period elapses to complete it.
func (n *Node) CloseChannelByID(id ticket.ChannelID) *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:      action.CloseChannelInit,
		ChannelID: id,
		Timeout:   n.cfg.ActionTimeout,
	})
}

// FinalizeChannelClose submits a CloseChannelFinalize action completing a
// channel closure already past its notice period.
func (n *Node) FinalizeChannelClose(id ticket.ChannelID) *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:      action.CloseChannelFinalize,
		ChannelID: id,
		Timeout:   n.cfg.ActionTimeout,
	})
}

// Withdraw submits a Withdraw action sending amount to recipient (spec.md
// section 6: "withdraw(currency, recipient, amount)"). Currency selection
// is left to the embedder's TransactionExecutor/PayloadGenerator.
func (n *Node) Withdraw(recipient hoprcrypto.Address, amount *big.Int) *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:           action.Withdraw,
		WithdrawTo:     recipient,
		WithdrawAmount: amount,
		Timeout:        n.cfg.ActionTimeout,
	})
}

// Announce submits an Announce action publishing this node's offchain
// identity key on-chain (spec.md section 6: "announce(multiaddrs)"; the
// multiaddr payload itself is carried by the embedder's PayloadGenerator,
// this call only triggers the on-chain announcement transaction for this
// node's own key).
func (n *Node) Announce() *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:        action.Announce,
		OffchainPub: n.cfg.Identity.Public(),
		Timeout:     n.cfg.ActionTimeout,
	})
}

// RegisterSafe submits a RegisterSafe action binding this node's identity
// to a Safe module contract address (spec.md section 6:
// "register_safe(addr)").
func (n *Node) RegisterSafe(safe hoprcrypto.Address) *action.PendingAction {
	return n.actions.Submit(action.Action{
		Kind:        action.RegisterSafe,
		SafeAddress: safe,
		Timeout:     n.cfg.ActionTimeout,
	})
}

// Channel looks up the directed channel edge from src to dst in the
// current graph snapshot (spec.md section 6: "channel(src, dst)").
func (n *Node) Channel(src, dst routing.NodeID) (*routing.Edge, bool) {
	for _, e := range n.graph.Current().EdgesFrom(src) {
		if e.To == dst {
			return e, true
		}
	}
	return nil, false
}

// ChannelsFrom lists every outgoing channel from id (spec.md section 6:
// "channels_from(addr)").
func (n *Node) ChannelsFrom(id routing.NodeID) []*routing.Edge {
	return n.graph.Current().EdgesFrom(id)
}

// ChannelsTo lists every channel whose destination is id (spec.md section
// 6: "channels_to(addr)"). The graph is indexed by source, so this scans
// every vertex's outgoing edges; fine for the node counts this module
// targets, and kept simple rather than maintaining a second reverse index
// for a query hoprctl calls rarely.
func (n *Node) ChannelsTo(id routing.NodeID) []*routing.Edge {
	var out []*routing.Edge
	snap := n.graph.Current()
	snap.ForEachChannel(func(e *routing.Edge) error {
		if e.To == id {
			out = append(out, e)
		}
		return nil
	})
	return out
}

// GetBalance performs a read-only query against currency's token contract
// for this node's onchain balance (spec.md section 6:
// "get_balance<Currency>()"). Going through the ChainClient rather than
// the ticket tracker since the tracker only knows channel-local ticket
// balances, not the node's spendable wallet balance.
func (n *Node) GetBalance(ctx context.Context, currency hoprcrypto.Address) (*big.Int, error) {
	raw, err := n.cfg.Chain.Query(ctx, currency, "balanceOf", n.cfg.Onchain.Address()[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// SafeAllowance performs a read-only query against the Safe module
// contract for the spending allowance granted to this node (spec.md
// section 6: "safe_allowance()").
func (n *Node) SafeAllowance(ctx context.Context, safe hoprcrypto.Address) (*big.Int, error) {
	raw, err := n.cfg.Chain.Query(ctx, safe, "allowance", n.cfg.Onchain.Address()[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}
