package twitch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nicklaw5/helix/v2"
)

// helixTransport routes one helix call through Client so the call shares the token, the
// budget wait and the 429 loop. err keeps the typed failure that helix would flatten to text.
type helixTransport struct {
	client   *Client
	ctx      context.Context
	endpoint string
	err      error
}

func (t *helixTransport) Do(req *http.Request) (*http.Response, error) {
	resp, err := t.client.send(t.ctx, t.endpoint, req)
	t.err = err
	return resp, err
}

// call resolves the access token, waits for budget and runs fn against a helix client bound
// to ctx. fn returns the response envelope so non-2xx answers become *APIError.
func (c *Client) call(ctx context.Context, endpoint string, fn func(*helix.Client) (*helix.ResponseCommon, error)) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	if err := c.waitForBudget(ctx); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	transport := &helixTransport{client: c, ctx: ctx, endpoint: endpoint}
	hc, err := helix.NewClient(&helix.Options{
		ClientID:   c.clientID,
		APIBaseURL: c.baseURL,
		HTTPClient: transport,
	})
	if err != nil {
		return fmt.Errorf("failed to create helix client: %w", err)
	}
	hc.SetUserAccessToken(token)

	common, err := fn(hc)
	if transport.err != nil {
		return transport.err
	}
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	if !isSuccess(common.StatusCode) {
		return apiError(common)
	}
	return nil
}

func apiError(rc *helix.ResponseCommon) *APIError {
	body := errorBody{Status: rc.ErrorStatus, Error: rc.Error, Message: rc.ErrorMessage}
	return &APIError{Status: rc.StatusCode, Message: body.text(rc.StatusCode), Code: rc.Error}
}
