package membership_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"treasuryd/membership"
)

func TestNewHTTPSourceValidation(t *testing.T) {
	_, err := membership.NewHTTPSource("")
	require.Error(t, err)
	_, err = membership.NewHTTPSource("not-a-url")
	require.Error(t, err)
	_, err = membership.NewHTTPSource("https://directory.example.org")
	require.NoError(t, err)
}

func TestListMembers(t *testing.T) {
	var requested string
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"members":[
			{"address":"0x1111111111111111111111111111111111111111","roles":["contributor","reviewer"]},
			{"address":"0x2222222222222222222222222222222222222222"}
		]}`))
	}))
	defer directory.Close()

	source, err := membership.NewHTTPSource(directory.URL)
	require.NoError(t, err)

	members, err := source.ListMembers(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Equal(t, "/v1/tenants/tenant-1/members", requested)
	require.Len(t, members, 2)
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), members[0].Address)
	require.Equal(t, []string{"contributor", "reviewer"}, members[0].Roles)
	require.Empty(t, members[1].Roles)
}

func TestListMembersRejectsBadAddress(t *testing.T) {
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"members":[{"address":"nonsense"}]}`))
	}))
	defer directory.Close()

	source, err := membership.NewHTTPSource(directory.URL)
	require.NoError(t, err)

	_, err = source.ListMembers(context.Background(), "tenant-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid member address")
}

func TestListMembersDirectoryError(t *testing.T) {
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer directory.Close()

	source, err := membership.NewHTTPSource(directory.URL)
	require.NoError(t, err)

	_, err = source.ListMembers(context.Background(), "tenant-1")
	require.Error(t, err)
}

func TestListMembersRequiresTenant(t *testing.T) {
	source, err := membership.NewHTTPSource("https://directory.example.org")
	require.NoError(t, err)
	_, err = source.ListMembers(context.Background(), "  ")
	require.Error(t, err)
}

func TestStrictChecker(t *testing.T) {
	member := membership.Member{Roles: []string{"Contributor"}}
	require.True(t, membership.StrictChecker{}.HasRole(member, "contributor"))
	require.False(t, membership.StrictChecker{}.HasRole(member, "reviewer"))
	require.True(t, membership.AllMembers{}.HasRole(member, "reviewer"))

	require.IsType(t, membership.StrictChecker{}, membership.CheckerForMode(true))
	require.IsType(t, membership.AllMembers{}, membership.CheckerForMode(false))
}
