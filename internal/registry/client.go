package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/plate"
)

// maxBodyBytes bounds registry replies; listings embed photos.
const maxBodyBytes = 64 << 20

// NewHTTPClient returns an http.Client with explicit dial and idle timeouts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// Client talks to the registry service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a registry client. token, when set, is sent as a bearer
// token on create and delete.
func NewClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(15 * time.Second)
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient, logger: logger.Named("registry_client")}
}

type apiError struct {
	Error string `json:"error"`
}

// List returns every registered vehicle.
func (c *Client) List(ctx context.Context) ([]Vehicle, error) {
	var out []Vehicle
	if err := c.do(ctx, "list", http.MethodGet, "/vehicles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByPlate looks a plate up on the server. A missing plate or a null body
// yields ErrNotFound. A record for a different plate, an empty one included,
// is a *TransportError; anything else that goes wrong is too.
func (c *Client) FindByPlate(ctx context.Context, p string) (*Vehicle, error) {
	var v *Vehicle
	if err := c.do(ctx, "find_by_plate", http.MethodGet, "/vehicles/"+url.PathEscape(p), nil, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	if got, want := plate.Normalize(v.Plate), plate.Normalize(p); got == "" || got != want {
		c.logger.Warn("registry returned a record for another plate",
			zap.String("requested", want),
			zap.String("returned", got))
		return nil, &TransportError{
			Operation:  "find_by_plate",
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("%w: record plate %q does not match %q", ErrMalformedResponse, got, want),
		}
	}
	return v, nil
}

// Lookup satisfies lookup.Gateway.
func (c *Client) Lookup(ctx context.Context, plate string) (*Vehicle, error) {
	return c.FindByPlate(ctx, plate)
}

// Create registers a vehicle.
func (c *Client) Create(ctx context.Context, req CreateVehicleRequest) (*CreateVehicleResponse, error) {
	var out CreateVehicleResponse
	if err := c.do(ctx, "create", http.MethodPost, "/vehicles", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the vehicle with the given registration id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, "delete", http.MethodDelete, "/vehicles/"+strconv.FormatInt(id, 10), nil, nil)
}

// Stats returns the registry summary.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, "stats", http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping checks that the registry answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registry %s: encode request: %w", op, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return &TransportError{Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" && method != http.MethodGet {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("registry request failed", zap.String("operation", op), zap.Error(err))
		return &TransportError{Operation: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}
	if !json.Valid(raw) {
		c.logger.Warn("registry returned non-JSON body",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(raw)))
		return &TransportError{Operation: op, StatusCode: resp.StatusCode, Err: ErrMalformedResponse}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &TransportError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicatePlate
	case resp.StatusCode == http.StatusBadRequest:
		return &ValidationError{Message: errorMessage(raw)}
	default:
		return &TransportError{Operation: op, StatusCode: resp.StatusCode, Err: errors.New(errorMessage(raw))}
	}
}

func errorMessage(raw []byte) string {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return "unexpected response"
}
