package daemon

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seedhypermedia/wxr-importer/internal/ratelimit"
)

const (
	defaultRPS     = 20.0
	defaultBurst   = 5
	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response ends up in an error.
	maxErrorBody = 512
)

// Config configures the gateway client.
type Config struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is a rate-limited JSON client for the daemon's HTTP gateway.
// It implements KeyService, DocumentService, AccessControl and BlobUploader.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

var (
	_ KeyService      = (*Client)(nil)
	_ DocumentService = (*Client)(nil)
	_ AccessControl   = (*Client)(nil)
	_ BlobUploader    = (*Client)(nil)
)

// New creates a gateway client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse daemon url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("daemon url must be http or https: %q", cfg.BaseURL)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		limiter: ratelimit.New(rps, defaultBurst),
		logger:  logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// ListKeys returns every key registered with the daemon.
func (c *Client) ListKeys(ctx context.Context) ([]Key, error) {
	var resp struct {
		Keys []Key `json:"keys"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/keys", nil, nil, &resp); err != nil {
		return nil, wrapError("listKeys", "", err)
	}
	return resp.Keys, nil
}

// RegisterKey derives a key from mnemonic and stores it under name.
func (c *Client) RegisterKey(ctx context.Context, mnemonic []string, name string) (*Key, error) {
	req := struct {
		Mnemonic []string `json:"mnemonic"`
		Name     string   `json:"name"`
	}{Mnemonic: mnemonic, Name: name}

	var key Key
	if err := c.doJSON(ctx, http.MethodPost, "/api/keys", nil, req, &key); err != nil {
		return nil, wrapError("registerKey", name, err)
	}
	if key.Name == "" {
		key.Name = name
	}
	return &key, nil
}

// GenMnemonic asks the daemon for a fresh BIP-39 mnemonic.
func (c *Client) GenMnemonic(ctx context.Context) ([]string, error) {
	var resp struct {
		Mnemonic []string `json:"mnemonic"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/keys/mnemonic", nil, struct{}{}, &resp); err != nil {
		return nil, wrapError("genMnemonic", "", err)
	}
	return resp.Mnemonic, nil
}

// GetDocument returns the latest version of a document, or ErrNotFound.
func (c *Client) GetDocument(ctx context.Context, account, path string) (*Document, error) {
	query := url.Values{}
	query.Set("account", account)
	query.Set("path", path)

	var doc Document
	if err := c.doJSON(ctx, http.MethodGet, "/api/documents", query, nil, &doc); err != nil {
		return nil, wrapError("getDocument", path, err)
	}
	return &doc, nil
}

// CreateDocumentChange applies a change set in one signed transaction.
func (c *Client) CreateDocumentChange(ctx context.Context, req CreateDocumentChangeRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents/changes", nil, req, nil); err != nil {
		return wrapError("createDocumentChange", req.Path, err)
	}
	return nil
}

// ListCapabilities returns the capabilities granted on an account path.
func (c *Client) ListCapabilities(ctx context.Context, account, path string) ([]Capability, error) {
	query := url.Values{}
	query.Set("account", account)
	query.Set("path", path)

	var resp struct {
		Capabilities []Capability `json:"capabilities"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/capabilities", query, nil, &resp); err != nil {
		return nil, wrapError("listCapabilities", path, err)
	}
	return resp.Capabilities, nil
}

// CreateCapability grants a capability.
func (c *Client) CreateCapability(ctx context.Context, req CreateCapabilityRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/capabilities", nil, req, nil); err != nil {
		return wrapError("createCapability", req.Path, err)
	}
	return nil
}

// UploadBlob stores data and returns its content id.
func (c *Client) UploadBlob(ctx context.Context, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/blobs", nil, contentType, bytes.NewReader(data))
	if err != nil {
		return "", wrapError("uploadBlob", "", err)
	}

	var resp struct {
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", wrapError("uploadBlob", "", fmt.Errorf("parse response: %w", err))
	}
	if resp.CID == "" {
		return "", wrapError("uploadBlob", "", fmt.Errorf("empty cid in response"))
	}
	return resp.CID, nil
}

// doJSON sends in (if non-nil) as the JSON body and decodes the response into
// out (if non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var reqBody io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
		contentType = "application/json"
	}

	body, err := c.doRequest(ctx, method, path, query, contentType, reqBody)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// doRequest executes an HTTP request with rate limiting.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, contentType string, reqBody io.Reader) ([]byte, error) {
	// Wait for rate limit
	if err := c.limiter.WaitURL(ctx, c.base); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SeedImporter/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("daemon request",
		"method", method,
		"path", path,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, fmt.Errorf("%w: %s", ErrConflict, truncate(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, truncate(body))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
