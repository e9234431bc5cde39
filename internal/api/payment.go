package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/rescale/drivectl/internal/models"
)

// Checkout opens a payment session and returns the hosted checkout URL.
func (c *Client) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	const endpoint = "POST /service/v1/checkout"
	resp, err := c.do(ctx, request{
		service: ServicePayment,
		op:      "checkout",
		method:  "POST",
		path:    "/service/v1/checkout",
		body:    req,
		kind:    callWrite,
	})
	if err != nil {
		return nil, err
	}

	var out models.CheckoutResponse
	if err := decodeJSON(resp, endpoint, &out); err != nil {
		return nil, err
	}
	u, err := url.Parse(out.SessionURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("sessionUrl is not an absolute URL")}
	}
	return &out, nil
}
