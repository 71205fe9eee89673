package shortlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotConfigured = errors.New("shortlink service not configured")
	ErrRejected      = errors.New("shortlink service rejected the request")
)

// Client habla con servicios de shortlinks compatibles (GET ?api=<key>&url=<url>).
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient construye un cliente con timeout propio; sin URL o api key queda deshabilitado.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSpace(baseURL),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// RequestURL arma la URL de la llamada conservando los query params de la base.
func (c *Client) RequestURL(longURL string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse shortlink url: %w", err)
	}
	q := u.Query()
	q.Set("api", c.apiKey)
	q.Set("url", longURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	reqURL, err := c.RequestURL(longURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("shortlink http error: status=%d", resp.StatusCode)
	}

	var sr shortenResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if !strings.EqualFold(sr.Status, "success") {
		return "", fmt.Errorf("%w: %s", ErrRejected, sr.reason())
	}
	short := strings.TrimSpace(sr.ShortenedURL)
	if short == "" {
		return "", fmt.Errorf("%w: empty shortenedUrl", ErrRejected)
	}
	return short, nil
}

type shortenResponse struct {
	Status       string          `json:"status"`
	ShortenedURL string          `json:"shortenedUrl"`
	Message      json.RawMessage `json:"message,omitempty"`
}

// Algunos proveedores devuelven message como string y otros como lista.
func (r shortenResponse) reason() string {
	if len(r.Message) == 0 {
		return "status=" + r.Status
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(r.Message, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(r.Message)
}
