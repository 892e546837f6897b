package twitch

import (
	"context"
	"fmt"

	"github.com/nicklaw5/helix/v2"
)

type (
	Stream        = helix.Stream
	StreamsParams = helix.StreamsParams
)

// GetStreams returns the live streams among the requested channels; offline channels are absent.
func (c *Client) GetStreams(ctx context.Context, p StreamsParams) (*Page[Stream], error) {
	if len(p.UserIDs) > MaxIDsPerRequest || len(p.UserLogins) > MaxIDsPerRequest {
		return nil, fmt.Errorf("get streams: %w", ErrTooManyIDs)
	}

	var resp *helix.StreamsResponse
	err := c.call(ctx, "/streams", func(hc *helix.Client) (*helix.ResponseCommon, error) {
		var err error
		if resp, err = hc.GetStreams(&p); err != nil {
			return nil, err
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	return &Page[Stream]{Data: resp.Data.Streams, Pagination: resp.Data.Pagination}, nil
}
