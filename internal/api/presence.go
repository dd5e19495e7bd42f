package api

import (
	"context"
	"net/url"

	"github.com/taskflow/tasksync/internal/presence"
)

// onlineUsersResponse is the wire shape of GET /users/online.
type onlineUsersResponse struct {
	Users []presence.Entry `json:"users"`
}

// OnlineUsers fetches the currently online users, optionally filtered to
// one project. Implements presence.RosterSource.
func (c *Client) OnlineUsers(ctx context.Context, projectID string) ([]presence.Entry, error) {
	query := url.Values{}
	if projectID != "" {
		query.Set("project_id", projectID)
	}

	var resp onlineUsersResponse
	if err := c.get(ctx, "/users/online", query, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched online users", "count", len(resp.Users), "project_id", projectID)
	return resp.Users, nil
}
