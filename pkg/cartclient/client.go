// Package cartclient is a typed client for the authenticated cart
// endpoints. Every mutation returns the server's full canonical item
// list; callers replace their local state with it rather than merging.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/souqdev/souq/pkg/pricing"
)

type Client struct {
	baseURL    string
	httpClient *http.Client

	// AccessToken is attached as the auth cookie on every request.
	AccessToken string
}

// NewClient builds a cart client for a backend base URL such as
// "http://localhost:8080/api/v1".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type serverItem struct {
	ProductID uint    `json:"product_id"`
	Quantity  uint    `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Price     float64 `json:"price"`
}

type cartResponse struct {
	Items []serverItem `json:"items"`
}

func (c *Client) Fetch(ctx context.Context) ([]pricing.Item, error) {
	return c.roundTrip(ctx, http.MethodGet, "/cart", nil)
}

type addRequest struct {
	ProductID uint    `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Price     float64 `json:"price,omitempty"`
}

func (c *Client) Add(ctx context.Context, item pricing.Item) ([]pricing.Item, error) {
	body := addRequest{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Size:      item.Size,
		Color:     item.Color,
		Price:     item.Price,
	}
	return c.roundTrip(ctx, http.MethodPost, "/cart", body)
}

func (c *Client) UpdateQuantity(ctx context.Context, productID uint, quantity int) ([]pricing.Item, error) {
	body := map[string]int{"quantity": quantity}
	return c.roundTrip(ctx, http.MethodPut, "/cart/"+strconv.FormatUint(uint64(productID), 10), body)
}

func (c *Client) Remove(ctx context.Context, productID uint) ([]pricing.Item, error) {
	return c.roundTrip(ctx, http.MethodDelete, "/cart/"+strconv.FormatUint(uint64(productID), 10), nil)
}

func (c *Client) Clear(ctx context.Context) ([]pricing.Item, error) {
	return c.roundTrip(ctx, http.MethodDelete, "/cart/clear", nil)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) ([]pricing.Item, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: c.AccessToken})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cart request failed with status: %d", resp.StatusCode)
	}

	var result cartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	items := make([]pricing.Item, len(result.Items))
	for i, it := range result.Items {
		items[i] = pricing.Item{
			ProductID: it.ProductID,
			Quantity:  int(it.Quantity),
			Size:      it.Size,
			Color:     it.Color,
			Price:     it.Price,
		}
	}
	return items, nil
}
