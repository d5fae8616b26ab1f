package membership

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Member is one recipient candidate together with the roles the directory
// reports for it.
type Member struct {
	Address common.Address `json:"address"`
	Roles   []string       `json:"roles,omitempty"`
}

// Checker confirms whether a member holds a role. Resolution correctness
// depends entirely on this capability check, so it is an injectable
// dependency rather than a hard-coded policy.
type Checker interface {
	HasRole(member Member, roleID string) bool
}

// StrictChecker consults the role set reported by the membership directory.
type StrictChecker struct{}

// HasRole reports whether the directory lists the role for the member.
func (StrictChecker) HasRole(member Member, roleID string) bool {
	for _, role := range member.Roles {
		if strings.EqualFold(role, roleID) {
			return true
		}
	}
	return false
}

// AllMembers applies every payout entry to every member regardless of role.
type AllMembers struct{}

// HasRole always confirms.
func (AllMembers) HasRole(Member, string) bool { return true }

// CheckerForMode selects the checker matching the strict_roles setting.
func CheckerForMode(strict bool) Checker {
	if strict {
		return StrictChecker{}
	}
	return AllMembers{}
}

// StaticSource serves a fixed membership snapshot, useful for tests and
// local development.
type StaticSource map[string][]Member

// ListMembers returns the configured members for the tenant.
func (s StaticSource) ListMembers(_ context.Context, tenantID string) ([]Member, error) {
	members := s[tenantID]
	out := make([]Member, len(members))
	copy(out, members)
	return out, nil
}
