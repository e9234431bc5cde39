package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/rescale/drivectl/internal/models"
)

// GetUser fetches the profile for token. It does not use the session token,
// so the session can validate a token before storing it.
func (c *Client) GetUser(ctx context.Context, token string) (*models.UserProfile, error) {
	const endpoint = "GET /api/auth/user"
	if token == "" {
		return nil, ErrUnauthorized
	}
	resp, err := c.do(ctx, request{
		service: ServiceAuth,
		op:      "get user",
		method:  "GET",
		path:    "/api/auth/user",
		token:   token,
	})
	if err != nil {
		return nil, err
	}

	var profile models.UserProfile
	if err := decodeJSON(resp, endpoint, &profile); err != nil {
		return nil, err
	}
	if profile.Email == "" && profile.ID == 0 {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("profile has neither id nor email")}
	}
	return &profile, nil
}

// GetStoragePlan fetches the user's plan and consumption.
func (c *Client) GetStoragePlan(ctx context.Context) (*models.StoragePlan, error) {
	const endpoint = "GET /api/auth/getStoragePlanAndConsumption"
	resp, err := c.do(ctx, request{
		service: ServiceAuth,
		op:      "get storage plan",
		method:  "GET",
		path:    "/api/auth/getStoragePlanAndConsumption",
	})
	if err != nil {
		return nil, err
	}

	var plan models.StoragePlan
	if err := decodeJSON(resp, endpoint, &plan); err != nil {
		return nil, err
	}
	if plan.Plan == "" {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("missing plan")}
	}
	if plan.StorageConsumed < 0 {
		return nil, &DecodeError{Endpoint: endpoint, Err: errors.New("negative storageConsumed")}
	}
	return &plan, nil
}

// LoginURL returns the browser entry point of the Google login flow. The auth
// service redirects to redirectURI with ?token= once the user signs in.
func (c *Client) LoginURL(redirectURI string) string {
	u := c.baseURLs[ServiceAuth] + "/api/auth/login/google"
	if redirectURI == "" {
		return u
	}
	return u + "?" + url.Values{"redirect_uri": {redirectURI}}.Encode()
}
