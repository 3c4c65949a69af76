package hopr

import (
	"github.com/hoprnet/hopr-relay/ack"
	"github.com/hoprnet/hopr-relay/action"
)

// redeemAction builds the RedeemTicket action submitted once an
// acknowledgement resolves this node's own registry entry as a ticket
// holder (spec.md section 4.J's on-chain redemption path).
func (n *Node) redeemAction(resolved ack.ResolvedEntry) action.Action {
	return action.Action{
		Kind:       action.RedeemTicket,
		Redeemable: &resolved.Response,
		Timeout:    n.cfg.ActionTimeout,
	}
}
