package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the bearer token for outgoing requests. An empty
// token means the request is sent without credentials.
type TokenSource interface {
	Token() string
}

// CartGateway is the typed client for the remote cart resource. The
// backend's response envelope is not uniform across endpoints, so every
// operation normalizes the body into a CartSnapshot; a response in which
// no items can be located is a valid empty cart, not an error. Network
// and HTTP failures are returned as-is — retry policy belongs to the
// caller.
type CartGateway interface {
	FetchCart(ctx context.Context) (entity.CartSnapshot, error)
	AddItem(ctx context.Context, productID int64, skuID *int64, quantity int) (entity.CartSnapshot, error)
	UpdateItem(ctx context.Context, itemID int64, quantity int) (entity.CartSnapshot, error)
	RemoveItem(ctx context.Context, itemID int64) (entity.CartSnapshot, error)
	ClearCart(ctx context.Context) (ClearResult, error)
}

type ClearResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the cart resource.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart API error (status %d): %s", e.StatusCode, e.Message)
}

type addItemRequest struct {
	ProductID    int64  `json:"productId"`
	ProductSkuID *int64 `json:"productSkuId,omitempty"`
	Quantity     int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type httpCartGateway struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	log     logger.Logger
	sfg     singleflight.Group
}

func NewCartGateway(baseURL string, httpClient *http.Client, tokens TokenSource, log logger.Logger) (CartGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cart API base URL %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpCartGateway{
		baseURL: u,
		http:    httpClient,
		tokens:  tokens,
		log:     log,
	}, nil
}

func (g *httpCartGateway) do(ctx context.Context, method, path string, body interface{}) (int, json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body for %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	u := g.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if g.tokens != nil {
		if token := g.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("cart API request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read cart API response for %s %s: %w", method, path, err)
	}
	return resp.StatusCode, raw, nil
}

// normalize turns one of the backend's envelope shapes into a snapshot.
// A 404 that mentions the cart, an explicit "no cart" message, or a body
// in which no items can be located all yield an empty cart.
func (g *httpCartGateway) normalize(op string, status int, raw json.RawMessage) (entity.CartSnapshot, error) {
	if status == http.StatusNotFound {
		if mentionsCart(raw) {
			return entity.EmptySnapshot(), nil
		}
		return entity.CartSnapshot{}, &APIError{StatusCode: status, Message: responseMessage(raw)}
	}
	if status < 200 || status > 299 {
		return entity.CartSnapshot{}, &APIError{StatusCode: status, Message: responseMessage(raw)}
	}

	if isNoCartMessage(raw) {
		return entity.EmptySnapshot(), nil
	}

	lines, ok := extractLines(raw)
	if !ok {
		g.log.Warnf("No items located in cart API response for %s, normalizing to empty cart", op)
		return entity.EmptySnapshot(), nil
	}
	return entity.CartSnapshot{Items: lines}, nil
}

func (g *httpCartGateway) FetchCart(ctx context.Context) (entity.CartSnapshot, error) {
	// Concurrent fetches for the same session collapse into one request.
	v, err, _ := g.sfg.Do("cart", func() (interface{}, error) {
		status, raw, err := g.do(ctx, http.MethodGet, "cart/", nil)
		if err != nil {
			return nil, err
		}
		snap, err := g.normalize("fetch", status, raw)
		if err != nil {
			return nil, err
		}
		return snap, nil
	})
	if err != nil {
		return entity.CartSnapshot{}, err
	}
	return v.(entity.CartSnapshot), nil
}

func (g *httpCartGateway) AddItem(ctx context.Context, productID int64, skuID *int64, quantity int) (entity.CartSnapshot, error) {
	body := addItemRequest{ProductID: productID, ProductSkuID: skuID, Quantity: quantity}
	status, raw, err := g.do(ctx, http.MethodPost, "cart/add", body)
	if err != nil {
		return entity.CartSnapshot{}, err
	}
	return g.normalize("add", status, raw)
}

func (g *httpCartGateway) UpdateItem(ctx context.Context, itemID int64, quantity int) (entity.CartSnapshot, error) {
	body := updateItemRequest{Quantity: quantity}
	status, raw, err := g.do(ctx, http.MethodPut, fmt.Sprintf("cart/update/%d", itemID), body)
	if err != nil {
		return entity.CartSnapshot{}, err
	}
	return g.normalize("update", status, raw)
}

func (g *httpCartGateway) RemoveItem(ctx context.Context, itemID int64) (entity.CartSnapshot, error) {
	status, raw, err := g.do(ctx, http.MethodDelete, fmt.Sprintf("cart/remove/%d", itemID), nil)
	if err != nil {
		return entity.CartSnapshot{}, err
	}
	// Removing the last line deletes the server-side cart resource, so a
	// "no cart" answer here is the expected empty result.
	return g.normalize("remove", status, raw)
}

func (g *httpCartGateway) ClearCart(ctx context.Context) (ClearResult, error) {
	status, raw, err := g.do(ctx, http.MethodDelete, "cart/clear", nil)
	if err != nil {
		return ClearResult{}, err
	}
	if status == http.StatusNotFound && mentionsCart(raw) {
		// Clearing a cart that does not exist is already the desired state.
		return ClearResult{Success: true, Message: responseMessage(raw)}, nil
	}
	if status < 200 || status > 299 {
		return ClearResult{}, &APIError{StatusCode: status, Message: responseMessage(raw)}
	}

	// An explicit success=false in a well-formed 2xx body is a refusal and
	// must survive as one. Only an absent success field (the status code
	// already says 2xx) or an undecodable body reads as success.
	var wire struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		g.log.Warnf("Undecodable cart API response for clear, trusting the status code: %v", err)
		return ClearResult{Success: true}, nil
	}
	result := ClearResult{Success: true, Message: wire.Message}
	if wire.Success != nil {
		result.Success = *wire.Success
	}
	return result, nil
}
