// Package transport speaks the {ok, ...} JSON envelope of the trainhub API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 8 << 20
)

// ErrMissingBaseURL indicates a client without a server address.
var ErrMissingBaseURL = errors.New("transport: base url required")

// TokenSource returns the bearer token for the next request, or "" when signed out.
type TokenSource func() string

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zap.Logger
}

// Client issues JSON requests against the API and classifies their failures.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

type envelope struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = func() string { return "" }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// BaseURL returns the server address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET request and decodes the success envelope into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body and decodes the success envelope into out.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, query, body, out)
}

// Do sends one request. Failures are *TransportError or *ApplicationError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), payload)
	if err != nil {
		return fmt.Errorf("transport: build %s %s: %w", method, path, err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return c.send(request, out)
}

// Upload posts one file as multipart form field and decodes the success envelope into out.
func (c *Client) Upload(ctx context.Context, path, field, filename string, content io.Reader, out any) error {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("transport: create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("transport: read upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("transport: finish form: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), &buffer)
	if err != nil {
		return fmt.Errorf("transport: build upload %s: %w", path, err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return c.send(request, out)
}

// Stream opens a long-lived GET, such as a server-sent event feed, and returns its body.
// The request is bounded by ctx only; the configured timeout does not apply.
func (c *Client) Stream(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("transport: build stream %s: %w", path, err)
	}
	op := "GET " + request.URL.Path
	if token := c.tokens(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	request.Header.Set("Accept", "text/event-stream")

	streaming := &http.Client{Transport: c.httpClient.Transport}
	response, err := streaming.Do(request)
	if err != nil {
		return nil, &TransportError{Kind: KindUnreachable, Op: op, Err: err}
	}
	if response.StatusCode == http.StatusOK && strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream") {
		return response.Body, nil
	}
	defer response.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	var head envelope
	if err := json.Unmarshal(raw, &head); err == nil && head.OK != nil && !*head.OK {
		return nil, &ApplicationError{Code: head.Code, Message: head.Error, Status: response.StatusCode}
	}
	return nil, &TransportError{Kind: KindMalformed, Op: op, Err: fmt.Errorf("unexpected stream response (status %d)", response.StatusCode)}
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) send(request *http.Request, out any) error {
	op := request.Method + " " + request.URL.Path
	if token := c.tokens(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	request.Header.Set("Accept", "application/json")

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return &TransportError{Kind: KindUnreachable, Op: op, Err: err}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Kind: KindUnreachable, Op: op, Err: err}
	}
	c.logger.Debug("request completed",
		zap.String("op", op),
		zap.Int("status", response.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	var head envelope
	if err := json.Unmarshal(raw, &head); err != nil || head.OK == nil {
		if err == nil {
			err = fmt.Errorf("response without ok field (status %d)", response.StatusCode)
		}
		return &TransportError{Kind: KindMalformed, Op: op, Err: err}
	}
	if !*head.OK {
		return &ApplicationError{Code: head.Code, Message: head.Error, Status: response.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Kind: KindMalformed, Op: op, Err: err}
	}
	return nil
}
