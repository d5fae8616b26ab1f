package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const membersResponseLimit = 1 << 20 // 1 MiB

// HTTPSource fetches membership snapshots from a directory service.
type HTTPSource struct {
	endpoint *url.URL
	client   *http.Client
}

// NewHTTPSource validates the directory endpoint and constructs a source.
func NewHTTPSource(endpoint string) (*HTTPSource, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("membership: endpoint required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("membership: parse endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("membership: endpoint must include scheme and host")
	}
	return &HTTPSource{
		endpoint: parsed,
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type memberPayload struct {
	Address string   `json:"address"`
	Roles   []string `json:"roles"`
}

type membersResponse struct {
	Members []memberPayload `json:"members"`
}

// ListMembers queries the directory for the tenant's current membership.
func (s *HTTPSource) ListMembers(ctx context.Context, tenantID string) ([]Member, error) {
	if s == nil || s.endpoint == nil {
		return nil, fmt.Errorf("membership: source not configured")
	}
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return nil, fmt.Errorf("membership: tenant id required")
	}
	target := *s.endpoint
	target.Path = strings.TrimRight(target.Path, "/") + "/v1/tenants/" + url.PathEscape(trimmed) + "/members"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("membership: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("membership: query directory: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("membership: directory returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, membersResponseLimit))
	if err != nil {
		return nil, fmt.Errorf("membership: read response: %w", err)
	}
	var payload membersResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("membership: decode response: %w", err)
	}
	members := make([]Member, 0, len(payload.Members))
	for _, entry := range payload.Members {
		address := strings.TrimSpace(entry.Address)
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("membership: invalid member address %q", entry.Address)
		}
		members = append(members, Member{
			Address: common.HexToAddress(address),
			Roles:   append([]string(nil), entry.Roles...),
		})
	}
	return members, nil
}
