// Package bridgeclient calls the bridge HTTP API on behalf of agent tooling.
package bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slighter12/ae-bridge-go/scanner"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8080"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 32 << 20
)

var ErrInvalidArgument = errors.New("invalid argument")

// BridgeError is an error envelope returned by the bridge, or a response that
// was not an envelope at all.
type BridgeError struct {
	StatusCode int
	Message    string
	RawResult  string
}

func (e *BridgeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bridge error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "bridge error: " + e.Message
}

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	RawResult string          `json:"rawResult"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client for baseURL; empty means DefaultBaseURL.
func New(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Health checks that the bridge answers {"status":"ok"}.
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	status, raw, err := c.send(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &body); err != nil || status != http.StatusOK || body.Status != "ok" {
		return &BridgeError{StatusCode: status, Message: "unexpected health response", RawResult: string(raw)}
	}
	return nil
}

func (c *Client) Layers(ctx context.Context) ([]scanner.Layer, error) {
	var layers []scanner.Layer
	if _, err := c.call(ctx, http.MethodGet, "/layers", nil, nil, &layers); err != nil {
		return nil, err
	}
	return layers, nil
}

// Properties scans one layer. Empty group names are dropped and a
// non-positive MaxDepth means unbounded.
func (c *Client) Properties(ctx context.Context, layerID int, opts scanner.Options) ([]scanner.PropertyNode, error) {
	if layerID <= 0 {
		return nil, fmt.Errorf("%w: layerId must be a positive integer", ErrInvalidArgument)
	}
	query := url.Values{}
	query.Set("layerId", strconv.Itoa(layerID))
	for _, group := range opts.IncludeGroups {
		if group = strings.TrimSpace(group); group != "" {
			query.Add("includeGroup", group)
		}
	}
	for _, group := range opts.ExcludeGroups {
		if group = strings.TrimSpace(group); group != "" {
			query.Add("excludeGroup", group)
		}
	}
	if opts.MaxDepth > 0 {
		query.Set("maxDepth", strconv.Itoa(opts.MaxDepth))
	}

	var props []scanner.PropertyNode
	if _, err := c.call(ctx, http.MethodGet, "/properties", query, nil, &props); err != nil {
		return nil, err
	}
	return props, nil
}

func (c *Client) SelectedProperties(ctx context.Context) ([]scanner.SelectedProperty, error) {
	var selected []scanner.SelectedProperty
	if _, err := c.call(ctx, http.MethodGet, "/selected-properties", nil, nil, &selected); err != nil {
		return nil, err
	}
	return selected, nil
}

// SetExpression applies expression and returns the bridge's message.
func (c *Client) SetExpression(ctx context.Context, layerID int, propertyPath, expression string) (string, error) {
	if layerID <= 0 || strings.TrimSpace(propertyPath) == "" {
		return "", fmt.Errorf("%w: layerId and propertyPath are required", ErrInvalidArgument)
	}
	body, err := json.Marshal(map[string]any{
		"layerId":      layerID,
		"propertyPath": propertyPath,
		"expression":   expression,
	})
	if err != nil {
		return "", err
	}
	env, err := c.call(ctx, http.MethodPost, "/expression", nil, body, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body []byte, out any) (*envelope, error) {
	status, raw, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &BridgeError{StatusCode: status, Message: "response is not a bridge envelope: " + http.StatusText(status), RawResult: string(raw)}
	}
	if env.Status != "success" {
		msg := env.Message
		if msg == "" {
			msg = "Unknown error from AfterEffects bridge."
		}
		return nil, &BridgeError{StatusCode: status, Message: msg, RawResult: env.RawResult}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode %s data: %w", path, err)
		}
	}
	return &env, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	target := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return resp.StatusCode, raw, nil
}
