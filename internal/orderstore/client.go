// Package orderstore is the HTTP client for the order service REST API.
package orderstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
)

// Credentials supplies the admin bearer token. It is injected at construction
// so nothing reads tokens from ambient storage.
type Credentials interface {
	Token() (string, error)
}

type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrUnauthorized
	}
	return string(t), nil
}

type StatusUpdate struct {
	Status             models.OrderStatus `json:"status"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
}

type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListOrders loads every order. Admin only.
func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, "/orders", nil, true, &orders); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder is the public tracking lookup.
func (c *Client) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, false, &o); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &o, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	return c.UpdateOrder(ctx, id, StatusUpdate{Status: status})
}

func (c *Client) UpdateOrder(ctx context.Context, id string, upd StatusUpdate) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(id), upd, true, &o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}
	if o.ID == "" {
		// plain {"message": "..."} acknowledgement
		return nil, nil
	}
	return &o, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, auth bool, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.creds == nil {
			return ErrUnauthorized
		}
		token, err := c.creds.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
