// Package couponclient resolves coupon codes against the backend. It
// isolates network fallibility from the pricing math: every call settles
// to a definite result, with failures carried as messages instead of
// propagated errors, so a discount is never left undefined.
package couponclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a resolver for a backend base URL such as
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

type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type DiscountResult struct {
	Discount float64 `json:"discount"`
	Err      string  `json:"error,omitempty"`
}

// ApplyResult is the outcome of the validate-then-compute flow. Valid
// distinguishes "the code itself was rejected" from "the code is fine but
// the discount could not be computed"; the UI messages the two
// differently.
type ApplyResult struct {
	Discount float64
	Valid    bool
	Message  string
}

// Validate asks the backend whether a code is currently usable. It does
// not compute a discount. Transport failures come back as an invalid
// result with a message, never as an error.
func (c *Client) Validate(ctx context.Context, code string) ValidationResult {
	endpoint := c.baseURL + "/coupon/validate/" + url.PathEscape(code)

	var result ValidationResult
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return ValidationResult{Valid: false, Message: err.Error()}
	}
	return result
}

// ComputeDiscount asks the backend what discount a code yields for the
// given subtotal. The backend owns percentage-vs-fixed logic and any
// minimum-order rules. Any failure resolves to a zero discount plus a
// message so callers can always fall back to "no discount".
func (c *Client) ComputeDiscount(ctx context.Context, code string, subtotal float64) DiscountResult {
	endpoint := fmt.Sprintf("%s/coupon/calculate/%s?total=%g", c.baseURL, url.PathEscape(code), subtotal)

	var result DiscountResult
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return DiscountResult{Discount: 0, Err: err.Error()}
	}
	if result.Err != "" {
		result.Discount = 0
	}
	return result
}

// Apply runs validate then compute. An invalid code short-circuits with
// the validation message and never reaches the calculate endpoint.
func (c *Client) Apply(ctx context.Context, code string, subtotal float64) ApplyResult {
	validation := c.Validate(ctx, code)
	if !validation.Valid {
		return ApplyResult{Valid: false, Message: validation.Message}
	}

	discount := c.ComputeDiscount(ctx, code, subtotal)
	if discount.Err != "" {
		return ApplyResult{Valid: true, Discount: 0, Message: discount.Err}
	}
	return ApplyResult{Valid: true, Discount: discount.Discount}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coupon request failed with status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
