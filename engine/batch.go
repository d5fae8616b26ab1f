package engine

import "math/big"

// BuildBatch orders obligations into atomic transfer operations. Native
// transfers come first in obligation order, followed by one group per
// distinct token contract ordered by first occurrence, each group keeping
// insertion order. Zero-amount obligations never produce an operation; an
// empty input yields an empty output.
func BuildBatch(obligations []Obligation) []TransferOperation {
	native := make([]TransferOperation, 0, len(obligations))
	groups := make(map[Token][]TransferOperation)
	order := make([]Token, 0)
	for _, ob := range obligations {
		if ob.Amount == nil || ob.Amount.Sign() <= 0 {
			continue
		}
		op := TransferOperation{
			Token:     ob.Token,
			Recipient: ob.Recipient,
			Amount:    new(big.Int).Set(ob.Amount),
		}
		if ob.Token.IsNative() {
			native = append(native, op)
			continue
		}
		if _, seen := groups[ob.Token]; !seen {
			order = append(order, ob.Token)
		}
		groups[ob.Token] = append(groups[ob.Token], op)
	}
	ops := native
	for _, token := range order {
		ops = append(ops, groups[token]...)
	}
	return ops
}
