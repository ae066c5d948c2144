// Package api is the HTTP client for the remote reservation system of
// record. All authenticated calls draw their bearer credential from an
// oauth2.TokenSource so credential rotation never needs client rebuilds.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/seatwise/dashboard/internal/errors"
	"github.com/seatwise/dashboard/reservation"
	"github.com/seatwise/dashboard/tenant"
)

// Client talks to the remote reservation/config API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an API client. tokenSource may be nil until a session
// is established; only the unauthenticated token endpoints work without it.
func NewClient(baseURL string, tokenSource oauth2.TokenSource, options ...Option) *Client {
	client := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokenSource: tokenSource,
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// SetTokenSource installs the credential source for authenticated calls.
func (c *Client) SetTokenSource(tokenSource oauth2.TokenSource) {
	c.tokenSource = tokenSource
}

// ExchangeToken swaps a one-time login token for a session credential.
func (c *Client) ExchangeToken(ctx context.Context, oneTimeToken string) (string, error) {
	return c.tokenRequest(ctx, "/api/auth/verify", map[string]string{"token": oneTimeToken}, "")
}

// RenewToken requests a replacement credential using the current one as
// bearer proof.
func (c *Client) RenewToken(ctx context.Context, credential string) (string, error) {
	return c.tokenRequest(ctx, "/api/auth/renew", map[string]string{}, credential)
}

func (c *Client) tokenRequest(ctx context.Context, path string, body map[string]string, bearer string) (string, error) {
	var response struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, body, bearer, &response); err != nil {
		return "", err
	}
	if response.Token == "" {
		return "", errors.Wrap(apperrors.ErrMalformedPayload, "token endpoint returned no token")
	}
	return response.Token, nil
}

// ListReservations reads the authoritative reservation set for a tenant and
// optional date. A malformed (non-array) payload degrades to an empty
// collection rather than failing the view.
func (c *Client) ListReservations(ctx context.Context, tenantID, date string) ([]reservation.Reservation, error) {
	query := url.Values{"tenantId": {tenantID}}
	if date != "" {
		query.Set("date", date)
	}

	var raw json.RawMessage
	if err := c.authed(ctx, http.MethodGet, "/api/reservations", query, nil, &raw); err != nil {
		return nil, err
	}

	var reservations []reservation.Reservation
	if err := json.Unmarshal(raw, &reservations); err != nil {
		log.Warn().Str("tenant", tenantID).Msg("reservation payload is not an array; treating as empty")
		return []reservation.Reservation{}, nil
	}
	return reservations, nil
}

// PushReservations sends an upsert batch.
func (c *Client) PushReservations(ctx context.Context, tenantID string, records []reservation.UpsertRecord) error {
	query := url.Values{"tenantId": {tenantID}}
	return c.authed(ctx, http.MethodPost, "/api/reservations", query, records, nil)
}

// GetConfig reads the tenant configuration.
func (c *Client) GetConfig(ctx context.Context, tenantID string) (*tenant.Config, error) {
	query := url.Values{"tenantId": {tenantID}}
	var cfg tenant.Config
	if err := c.authed(ctx, http.MethodGet, "/api/config", query, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PutConfig writes the tenant configuration. Callers are expected to have
// normalized it first; nothing invalid should reach this method.
func (c *Client) PutConfig(ctx context.Context, tenantID string, cfg tenant.Config) error {
	query := url.Values{"tenantId": {tenantID}}
	return c.authed(ctx, http.MethodPost, "/api/config", query, cfg, nil)
}

// PollChangeFlag asks the lightweight change-flag endpoint whether anything
// changed since the last full fetch.
func (c *Client) PollChangeFlag(ctx context.Context, tenantID string) (bool, error) {
	query := url.Values{"tenantId": {tenantID}}
	var response struct {
		Refresh int `json:"refresh"`
	}
	if err := c.authed(ctx, http.MethodGet, "/api/reservations/changed", query, nil, &response); err != nil {
		return false, err
	}
	return response.Refresh != 0, nil
}

func (c *Client) authed(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.tokenSource == nil {
		return apperrors.ErrNoCredential
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return errors.Wrap(err, "token source")
	}
	return c.do(ctx, method, path, query, body, token.AccessToken, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrNetwork, "%s %s: %v", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		return apperrors.ErrUnauthorized
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return apperrors.Wrapf(apperrors.ErrNetwork, "%s %s: status %d", method, path, response.StatusCode)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return apperrors.Wrapf(apperrors.ErrMalformedPayload, "%s %s", method, path)
	}
	return nil
}
