package ticket

import "math/big"

// InverseWinProb rounds a win probability in (0,1] to the nearest
// integer multiplier an amount is scaled by to keep its expected payout
// equal to unitPrice regardless of winProb (spec.md section 4.C:
// "amount = unit_price * inverse(win_prob) * (remaining_hops - 1)").
// A winProb of 1.0 (near-certain win, this node's default policy)
// collapses to an inverse of 1, so tickets simply cost unitPrice per
// remaining hop.
func InverseWinProb(winProb float64) uint64 {
	if winProb <= 0 {
		return 0
	}
	if winProb >= 1 {
		return 1
	}
	return uint64(1/winProb + 0.5)
}

// MultihopAmount computes the amount a ticket must carry for a relay
// standing remainingHops forward-hops away from the final destination,
// so every hop along the route is compensated unitPrice in expectation
// regardless of winProb (spec.md section 4.C). remainingHops == 1 means
// the next hop IS the final destination, which needs no incentive, so
// the amount is zero - the same case the original implementation
// special-cased as a "zero-hop" ticket falls out of this formula
// naturally rather than needing a separate ticket variant.
func MultihopAmount(unitPrice *big.Int, winProb float64, remainingHops uint8) *big.Int {
	if remainingHops == 0 || remainingHops == 1 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(unitPrice, new(big.Int).SetUint64(InverseWinProb(winProb)))
	amount.Mul(amount, new(big.Int).SetUint64(uint64(remainingHops-1)))
	return amount
}

// PathPosition inverts MultihopAmount: given a received ticket's amount
// and the unitPrice/winProb policy it was minted under, it recovers the
// remainingHops this hop should use when minting the next hop's ticket
// - one fewer forward-hop than whoever minted the received ticket used,
// since this relay has now closed one hop of the distance to the final
// destination. A relay calls this on the ticket it just received rather
// than receiving remainingHops as an explicit wire field, which would
// leak path length to an observer. Returns 0 if amount is nil or
// unitPrice/winProb are degenerate.
func PathPosition(amount *big.Int, unitPrice *big.Int, winProb float64) uint8 {
	if amount == nil {
		return 0
	}
	inverse := InverseWinProb(winProb)
	if unitPrice == nil || unitPrice.Sign() <= 0 || inverse == 0 {
		return 0
	}
	denom := new(big.Int).Mul(unitPrice, new(big.Int).SetUint64(inverse))
	if denom.Sign() <= 0 {
		return 0
	}
	return uint8(new(big.Int).Div(amount, denom).Uint64())
}
