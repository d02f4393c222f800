// Package api is the typed REST client for the trading backend.
//
// Endpoints consumed: markets, order books, order placement/cancellation,
// portfolio positions and summary, and the caller's own trade history.
// Authentication is a bearer token attached to every request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/predikt/tradeclient/internal/types"
)

// Client talks to the trading backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. baseURL has no trailing slash, e.g.
// "http://localhost:8000".
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetMarket fetches the market document, including detailed outcome status
// and last-traded prices.
func (c *Client) GetMarket(ctx context.Context, marketID int64) (*types.Market, error) {
	var market types.Market
	path := fmt.Sprintf("/markets/%d", marketID)
	if err := c.get(ctx, path, nil, &market); err != nil {
		return nil, err
	}
	return &market, nil
}

// GetOrderBook fetches the buy-side book for one (outcome name, side).
func (c *Client) GetOrderBook(ctx context.Context, marketID int64, outcomeName string, side types.Side) (*types.OrderBook, error) {
	var book types.OrderBook
	path := fmt.Sprintf("/trading/markets/%d/orderbook", marketID)
	query := url.Values{
		"outcome_name": {outcomeName},
		"outcome":      {string(side)},
	}
	if err := c.get(ctx, path, query, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// PlaceOrder submits an order. Market orders carry price 0; the backend sets
// the authoritative price at match time.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	var order types.Order
	if err := c.post(ctx, "/trading/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	path := fmt.Sprintf("/trading/orders/%d/cancel", orderID)
	return c.post(ctx, path, nil, nil)
}

// Positions fetches the caller's positions, optionally scoped to one market.
func (c *Client) Positions(ctx context.Context, marketID int64) ([]types.Position, error) {
	path := "/portfolio/positions"
	if marketID > 0 {
		path = fmt.Sprintf("/portfolio/positions/%d", marketID)
	}
	var positions []types.Position
	if err := c.get(ctx, path, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Summary fetches the portfolio totals.
func (c *Client) Summary(ctx context.Context) (*types.PortfolioSummary, error) {
	var summary types.PortfolioSummary
	if err := c.get(ctx, "/portfolio/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// MyTrades fetches the caller's own fills for one market.
func (c *Client) MyTrades(ctx context.Context, marketID int64) ([]types.Trade, error) {
	path := fmt.Sprintf("/trading/markets/%d/my-trades", marketID)
	var trades []types.Trade
	if err := c.get(ctx, path, nil, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseRejection(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
