package twitch

import (
	"context"
	"fmt"

	"github.com/nicklaw5/helix/v2"
)

type (
	User        = helix.User
	UsersParams = helix.UsersParams
)

// GetUsers looks users up by id and/or login. Unknown users are simply absent from the result.
func (c *Client) GetUsers(ctx context.Context, p UsersParams) ([]User, error) {
	if len(p.IDs)+len(p.Logins) > MaxIDsPerRequest {
		return nil, fmt.Errorf("get users: %w", ErrTooManyIDs)
	}

	var resp *helix.UsersResponse
	err := c.call(ctx, "/users", func(hc *helix.Client) (*helix.ResponseCommon, error) {
		var err error
		if resp, err = hc.GetUsers(&p); err != nil {
			return nil, err
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Data.Users, nil
}
