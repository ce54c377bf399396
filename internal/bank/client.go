// Package bank implements the outbound client for the banking
// provider's REST API: money requests, payments, and account listing.
package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 15 * time.Second

// Amount is a monetary value as the provider represents it: a decimal
// string plus an ISO currency code.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Counterparty identifies the other side of a request or payment.
type Counterparty struct {
	IBAN string `json:"iban"`
	Name string `json:"name"`
}

// MoneyRequest asks a counterparty to pay the given amount.
type MoneyRequest struct {
	Amount       Amount       `json:"amount_inquired"`
	Counterparty Counterparty `json:"counterparty_alias"`
	Description  string       `json:"description"`
}

// PaymentOrder moves money from one of the user's accounts to a
// counterparty.
type PaymentOrder struct {
	Amount       Amount       `json:"amount"`
	Counterparty Counterparty `json:"counterparty_alias"`
	Description  string       `json:"description"`
}

// Account is a monetary account owned by the user.
type Account struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	IBAN        string `json:"iban"`
	Balance     Amount `json:"balance"`
}

// Client talks to the provider API over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// New creates a provider API client for the given base URL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateMoneyRequest files a request-inquiry against the given account.
func (c *Client) CreateMoneyRequest(ctx context.Context, userID, accountID string, req MoneyRequest) error {
	path := fmt.Sprintf("/user/%s/monetary-account/%s/request-inquiry",
		url.PathEscape(userID), url.PathEscape(accountID))

	c.logger.InfoContext(ctx, "creating money request",
		"account_id", accountID,
		"amount", req.Amount.Value,
		"counterparty_iban", req.Counterparty.IBAN)

	return c.do(ctx, http.MethodPost, path, req, nil)
}

// TransferPayment sends a payment from the given account.
func (c *Client) TransferPayment(ctx context.Context, userID, accountID string, order PaymentOrder) error {
	path := fmt.Sprintf("/user/%s/monetary-account/%s/payment",
		url.PathEscape(userID), url.PathEscape(accountID))

	c.logger.InfoContext(ctx, "transferring payment",
		"account_id", accountID,
		"amount", order.Amount.Value,
		"counterparty_iban", order.Counterparty.IBAN)

	return c.do(ctx, http.MethodPost, path, order, nil)
}

// ListAccounts returns the user's monetary accounts.
func (c *Client) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	path := fmt.Sprintf("/user/%s/monetary-account", url.PathEscape(userID))

	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	// Bound the body read so a misbehaving server cannot exhaust memory.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classify(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
