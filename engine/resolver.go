package engine

import (
	"math/big"

	"treasuryd/membership"
)

// Resolve computes the obligation owed to each member under the tenant's
// role-payout table. Entries are evaluated in table order: every positive
// entry the checker confirms for a member adds to that member's total, and
// the token of the last matching entry wins. Members whose total stays at
// zero are excluded. A member listed more than once accumulates into a
// single obligation. The output follows membership-list order, so identical
// inputs always yield identical results.
func Resolve(members []membership.Member, table []RolePayout, checker membership.Checker) []Obligation {
	if checker == nil {
		checker = membership.StrictChecker{}
	}
	obligations := make([]Obligation, 0, len(members))
	index := make(map[string]int, len(members))
	for _, member := range members {
		total := new(big.Int)
		var token Token
		for _, entry := range table {
			if entry.Amount == nil || entry.Amount.Sign() <= 0 {
				continue
			}
			if !checker.HasRole(member, entry.RoleID) {
				continue
			}
			total.Add(total, entry.Amount)
			token = entry.Token
		}
		if total.Sign() <= 0 {
			continue
		}
		key := member.Address.Hex()
		if at, seen := index[key]; seen {
			obligations[at].Amount.Add(obligations[at].Amount, total)
			obligations[at].Token = token
			continue
		}
		index[key] = len(obligations)
		obligations = append(obligations, Obligation{
			Recipient: member.Address,
			Amount:    total,
			Token:     token,
		})
	}
	return obligations
}
