// Package shopify talks to the Shopify Admin REST API and verifies
// inbound webhook signatures.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"shopsync/internal/faults"
)

// Order is the raw REST shape of one order. IDs arrive as JSON numbers;
// money fields arrive as decimal strings.
type Order struct {
	ID              json.Number `json:"id"`
	ProcessedAt     string      `json:"processed_at"`
	TotalPrice      string      `json:"total_price"`
	TotalDiscounts  string      `json:"total_discounts"`
	Currency        string      `json:"currency"`
	FinancialStatus string      `json:"financial_status"`
	Customer        *Customer   `json:"customer"`
}

type Customer struct {
	ID json.Number `json:"id"`
}

type Shop struct {
	ID       json.Number `json:"id"`
	Domain   string      `json:"domain"`
	Name     string      `json:"name"`
	Currency string      `json:"currency"`
}

type ordersEnvelope struct {
	Orders []Order `json:"orders"`
}

type shopEnvelope struct {
	Shop Shop `json:"shop"`
}

// Shopify paginates with a Link header: <url?page_info=X>; rel="next".
var nextPagePattern = regexp.MustCompile(`<[^>]+page_info=([^&>]+)[^>]*>;\s*rel="next"`)

type Client struct {
	http       *http.Client
	apiVersion string
	pageSize   int
}

// NewClient builds the REST client. The timeout bounds every call to the
// source so a hung upstream cannot hang a whole sync.
func NewClient(apiVersion string, pageSize int, timeout time.Duration) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		apiVersion: apiVersion,
		pageSize:   pageSize,
	}
}

// FetchOrdersPage fetches one page of orders and returns the next-page
// cursor from the Link header, empty when this is the last page.
func (c *Client) FetchOrdersPage(ctx context.Context, shopDomain, accessToken, pageInfo string) ([]Order, string, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", c.pageSize))
	params.Set("status", "any")
	if pageInfo != "" {
		params.Set("page_info", pageInfo)
	}

	var env ordersEnvelope
	headers, err := c.getJSON(ctx, shopDomain, accessToken, "orders.json", params, &env)
	if err != nil {
		return nil, "", err
	}
	return env.Orders, extractPageInfo(headers.Get("Link")), nil
}

func (c *Client) FetchShopProfile(ctx context.Context, shopDomain, accessToken string) (*Shop, error) {
	var env shopEnvelope
	if _, err := c.getJSON(ctx, shopDomain, accessToken, "shop.json", nil, &env); err != nil {
		return nil, err
	}
	return &env.Shop, nil
}

func (c *Client) getJSON(ctx context.Context, shopDomain, accessToken, resource string, params url.Values, out any) (http.Header, error) {
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/%s", shopDomain, c.apiVersion, resource)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", faults.ErrUpstream, resource, err)
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", faults.ErrUpstream, resource, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: shopify api error %d: %s", faults.ErrUpstream, res.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", faults.ErrUpstream, resource, err)
	}
	return res.Header, nil
}

func extractPageInfo(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	m := nextPagePattern.FindStringSubmatch(linkHeader)
	if len(m) < 2 {
		return ""
	}
	if decoded, err := url.QueryUnescape(m[1]); err == nil {
		return decoded
	}
	return m[1]
}
