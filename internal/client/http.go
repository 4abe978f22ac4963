package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/shopfront/cartsync/internal/domain"
)

// maxResponseSize caps how much of a cart service response is read (1MB).
const maxResponseSize = 1 << 20

const defaultTimeout = 10 * time.Second

// Client implements CartAPI over the storefront REST surface:
//
//	GET    /carts
//	POST   /carts/items
//	PUT    /carts/items/{productId}
//	DELETE /carts/items/{productId}?variantId=...
//	DELETE /carts
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    string
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. A request that would otherwise
// never settle must fail here; the store has no timeout of its own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithSessionToken attaches the anonymous or authenticated session token to
// every request.
func WithSessionToken(token string) Option {
	return func(c *Client) { c.session = token }
}

// WithTelemetry instruments outgoing requests with OpenTelemetry.
func WithTelemetry() Option {
	return func(c *Client) {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.httpClient.Transport = otelhttp.NewTransport(base)
	}
}

// WithRateLimit throttles outgoing requests. Rapid repeated quantity clicks
// still issue one request each, but bursts are smoothed instead of hammering
// the service.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type productDTO struct {
	ID       string  `json:"id"`
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Category string  `json:"category"`
}

type cartItemDTO struct {
	Product   productDTO `json:"product"`
	Quantity  int        `json:"quantity"`
	VariantID string     `json:"variantId"`
}

type cartEnvelope struct {
	Data struct {
		Items []cartItemDTO `json:"items"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	VariantID string `json:"variantId,omitempty"`
}

type updateItemRequest struct {
	Quantity  int    `json:"quantity"`
	VariantID string `json:"variantId,omitempty"`
}

func (c *Client) FetchCart(ctx context.Context) (domain.Items, error) {
	resp, err := c.do(ctx, http.MethodGet, "/carts", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readAPIError(resp)
	}

	var envelope cartEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode cart response: %w", err)
	}

	items := make(domain.Items, 0, len(envelope.Data.Items))
	for _, dto := range envelope.Data.Items {
		items = append(items, domain.LineItem{
			ProductID: dto.Product.ID,
			VariantID: dto.VariantID,
			Product: domain.ProductSnapshot{
				ID:       dto.Product.ID,
				SKU:      dto.Product.SKU,
				Name:     dto.Product.Name,
				Price:    dto.Product.Price,
				Image:    dto.Product.Image,
				Category: dto.Product.Category,
			},
			Quantity: dto.Quantity,
		})
	}
	return items, nil
}

func (c *Client) AddItem(ctx context.Context, productID string, quantity int, variantID string) error {
	body := addItemRequest{ProductID: productID, Quantity: quantity, VariantID: variantID}
	resp, err := c.do(ctx, http.MethodPost, "/carts/items", nil, body)
	if err != nil {
		return err
	}
	return drainStatus(resp)
}

func (c *Client) UpdateItem(ctx context.Context, productID string, quantity int, variantID string) error {
	body := updateItemRequest{Quantity: quantity, VariantID: variantID}
	resp, err := c.do(ctx, http.MethodPut, "/carts/items/"+url.PathEscape(productID), nil, body)
	if err != nil {
		return err
	}
	return drainStatus(resp)
}

// RemoveItem passes the variant as a query parameter, never a body field.
func (c *Client) RemoveItem(ctx context.Context, productID, variantID string) error {
	var query url.Values
	if variantID != "" {
		query = url.Values{"variantId": {variantID}}
	}
	resp, err := c.do(ctx, http.MethodDelete, "/carts/items/"+url.PathEscape(productID), query, nil)
	if err != nil {
		return err
	}
	return drainStatus(resp)
}

func (c *Client) ClearCart(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/carts", nil, nil)
	if err != nil {
		return err
	}
	return drainStatus(resp)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.session != "" {
		req.Header.Set("X-Session-Token", c.session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// drainStatus consumes a mutation response. Mutation bodies are not consumed
// beyond success or failure.
func drainStatus(resp *http.Response) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	return nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err == nil {
		var envelope errorEnvelope
		if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
