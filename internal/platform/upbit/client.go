// Package upbit implements a quote source backed by the public Upbit REST
// ticker endpoint.
package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sjlee-dev/coinrush/internal/domain"
)

// DefaultBaseURL is the public Upbit REST API root.
const DefaultBaseURL = "https://api.upbit.com"

// Client is the REST client for the Upbit ticker API. The ticker endpoint
// is public and needs no authentication.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.QuoteSource = (*Client)(nil)

// NewClient creates a new Upbit REST client. baseURL may be empty, in which
// case DefaultBaseURL is used.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Quotes fetches the latest ticker for the given market codes in one
// batched request. Entries with unparseable or non-positive trade prices
// are dropped; the caller decides what a missing code means.
func (c *Client) Quotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("markets", strings.Join(codes, ","))

	body, err := c.doRequest(ctx, "/v1/ticker?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("upbit: get ticker: %w", err)
	}

	var tickers []tickerResponse
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("upbit: decode ticker: %w", err)
	}

	quotes := make([]domain.Quote, 0, len(tickers))
	for _, t := range tickers {
		q, err := t.toQuote()
		if err != nil {
			continue // invalid quote, skip this asset for the tick
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (t tickerResponse) toQuote() (domain.Quote, error) {
	price, err := decimal.NewFromString(t.TradePrice.String())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("upbit: trade price %q: %w", t.TradePrice, err)
	}
	if !price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("upbit: trade price %s: %w", price, domain.ErrInvalidQuote)
	}

	rate := decimal.Zero
	if t.SignedChangeRate != "" {
		if r, err := decimal.NewFromString(t.SignedChangeRate.String()); err == nil {
			rate = r
		}
	}

	return domain.Quote{
		Code:           t.Market,
		TradePrice:     price,
		Change:         t.Change,
		ChangeRate:     rate,
		TradeTimestamp: t.TradeTimestamp,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	return body, nil
}
