package engine_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"treasuryd/engine"
	"treasuryd/membership"
)

var (
	memberA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	memberB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenX  = engine.Token(common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa").Hex())
	tokenY  = engine.Token(common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb").Hex())
)

func TestResolveSumsAcrossRoles(t *testing.T) {
	members := []membership.Member{{Address: memberA, Roles: []string{"contributor", "reviewer"}}}
	table := []engine.RolePayout{
		{RoleID: "contributor", Amount: big.NewInt(10), Token: tokenX},
		{RoleID: "reviewer", Amount: big.NewInt(5), Token: tokenX},
	}

	obligations := engine.Resolve(members, table, membership.StrictChecker{})
	require.Len(t, obligations, 1)
	require.Equal(t, memberA, obligations[0].Recipient)
	require.Equal(t, big.NewInt(15), obligations[0].Amount)
	require.Equal(t, tokenX, obligations[0].Token)
}

func TestResolveLastRoleTokenWins(t *testing.T) {
	members := []membership.Member{{Address: memberA, Roles: []string{"contributor", "reviewer"}}}
	table := []engine.RolePayout{
		{RoleID: "contributor", Amount: big.NewInt(10), Token: tokenX},
		{RoleID: "reviewer", Amount: big.NewInt(5), Token: tokenY},
	}

	obligations := engine.Resolve(members, table, membership.StrictChecker{})
	require.Len(t, obligations, 1)
	require.Equal(t, big.NewInt(15), obligations[0].Amount)
	require.Equal(t, tokenY, obligations[0].Token, "token of the last matching role in table order wins")
}

func TestResolveSkipsNonPositiveEntries(t *testing.T) {
	members := []membership.Member{{Address: memberA, Roles: []string{"contributor", "inactive"}}}
	table := []engine.RolePayout{
		{RoleID: "inactive", Amount: big.NewInt(0), Token: tokenY},
		{RoleID: "contributor", Amount: big.NewInt(7), Token: tokenX},
		{RoleID: "missing", Amount: nil, Token: tokenY},
	}

	obligations := engine.Resolve(members, table, membership.StrictChecker{})
	require.Len(t, obligations, 1)
	require.Equal(t, big.NewInt(7), obligations[0].Amount)
	require.Equal(t, tokenX, obligations[0].Token)
}

func TestResolveStrictCheckerFilters(t *testing.T) {
	members := []membership.Member{
		{Address: memberA, Roles: []string{"contributor"}},
		{Address: memberB, Roles: nil},
	}
	table := []engine.RolePayout{{RoleID: "contributor", Amount: big.NewInt(10), Token: engine.NativeToken}}

	strict := engine.Resolve(members, table, membership.StrictChecker{})
	require.Len(t, strict, 1)
	require.Equal(t, memberA, strict[0].Recipient)

	all := engine.Resolve(members, table, membership.AllMembers{})
	require.Len(t, all, 2, "pay-all policy applies every entry to every member")
}

func TestResolveExcludesZeroTotals(t *testing.T) {
	members := []membership.Member{{Address: memberA, Roles: []string{"lurker"}}}
	table := []engine.RolePayout{{RoleID: "contributor", Amount: big.NewInt(10), Token: tokenX}}

	obligations := engine.Resolve(members, table, membership.StrictChecker{})
	require.Empty(t, obligations)
}

func TestResolveMergesDuplicateMembers(t *testing.T) {
	members := []membership.Member{
		{Address: memberA, Roles: []string{"contributor"}},
		{Address: memberA, Roles: []string{"contributor"}},
	}
	table := []engine.RolePayout{{RoleID: "contributor", Amount: big.NewInt(10), Token: tokenX}}

	obligations := engine.Resolve(members, table, membership.StrictChecker{})
	require.Len(t, obligations, 1)
	require.Equal(t, big.NewInt(20), obligations[0].Amount)
}

func TestResolveDeterministic(t *testing.T) {
	members := []membership.Member{
		{Address: memberB, Roles: []string{"contributor"}},
		{Address: memberA, Roles: []string{"contributor", "reviewer"}},
	}
	table := []engine.RolePayout{
		{RoleID: "contributor", Amount: big.NewInt(3), Token: tokenX},
		{RoleID: "reviewer", Amount: big.NewInt(4), Token: tokenY},
	}

	first := engine.Resolve(members, table, membership.StrictChecker{})
	second := engine.Resolve(members, table, membership.StrictChecker{})
	require.Equal(t, first, second)
	require.Equal(t, memberB, first[0].Recipient, "output follows membership-list order")
}

func TestResolveEmptyMembership(t *testing.T) {
	table := []engine.RolePayout{{RoleID: "contributor", Amount: big.NewInt(10), Token: tokenX}}
	require.Empty(t, engine.Resolve(nil, table, membership.StrictChecker{}))
}
