package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetServerInfo fetches the registration record for a server.
func (c *Client) GetServerInfo(ctx context.Context, serverID string) (*ServerInfo, error) {
	if serverID == "" {
		return nil, fmt.Errorf("server id is required")
	}

	var resp ServerInfo
	if err := c.get(ctx, "/servers/"+url.PathEscape(serverID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get server %s: %w", serverID, err)
	}
	return &resp, nil
}
