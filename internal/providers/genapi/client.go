// Package genapi talks to the remote generation API: image submission, video
// submission and video status queries.
package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

// DefaultBaseURL is used when no base URL is configured or the configured one
// is unusable.
const DefaultBaseURL = "https://api.tu-zi.com/v1"

const maxResponseBytes = 16 << 20

var schemeRegexp = regexp.MustCompile(`(?i)^https?://`)

// Options configures the API client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Vocabulary     *Vocabulary
}

// Client performs HTTP calls against the generation API. The credential is
// passed per call, since the daemon serves requests on behalf of whoever holds
// the key.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	vocab      *Vocabulary
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	vocab := opts.Vocabulary
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Client{
		baseURL:    NormalizeBaseURL(opts.BaseURL),
		httpClient: httpClient,
		logger:     infra.OrDiscard(opts.Logger),
		vocab:      vocab,
	}
}

// BaseURL returns the normalized base every relative path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// Vocabulary returns the status mapping table used by the client.
func (c *Client) Vocabulary() *Vocabulary { return c.vocab }

// NormalizeBaseURL adds a missing scheme, trims trailing slashes and falls
// back to DefaultBaseURL for empty or path-only values such as "/v1".
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return DefaultBaseURL
	}
	if !schemeRegexp.MatchString(base) {
		if strings.HasPrefix(base, "/") {
			return DefaultBaseURL
		}
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}

// resolve turns a path into an absolute URL. Absolute URLs pass through, and a
// leading "/v1/" is dropped when the base already ends in "/v1".
func (c *Client) resolve(pathOrURL string) (string, error) {
	input := strings.TrimSpace(pathOrURL)
	if input == "" {
		return "", fmt.Errorf("genapi: empty request url")
	}
	if schemeRegexp.MatchString(input) {
		return input, nil
	}
	p := input
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasPrefix(p, "/v1/") && strings.HasSuffix(c.baseURL, "/v1") {
		p = p[3:]
	}
	return c.baseURL + p, nil
}

type request struct {
	method      string
	apiKey      string
	contentType string
	body        []byte
}

func (c *Client) do(ctx context.Context, path string, r request) ([]byte, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, &RequestError{Method: r.method, URL: target, Message: "invalid url: " + err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Method: r.method, URL: target, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &RequestError{Method: r.method, URL: target, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}
	c.logger.Debug().
		Str("method", r.method).
		Str("url", target).
		Int("status_code", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("genapi: request finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{
			Method:     r.method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(data, resp.StatusCode),
		}
	}
	return data, nil
}

// doWithFallback tries each path in order, moving on only when the server
// reports the endpoint itself as invalid.
func (c *Client) doWithFallback(ctx context.Context, paths []string, r request) ([]byte, error) {
	var lastErr error
	for i, p := range paths {
		data, err := c.do(ctx, p, r)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !IsInvalidEndpoint(err) {
			return nil, err
		}
		if i < len(paths)-1 {
			c.logger.Info().Str("path", p).Str("fallback", paths[i+1]).Msg("genapi: endpoint reported invalid, trying fallback")
		}
	}
	return nil, lastErr
}

// parseErrorMessage extracts a readable message from an error body of the
// shapes {"error":{"message":...}}, {"error":"..."} or {"message":...}.
func parseErrorMessage(body []byte, statusCode int) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "HTTP " + strconv.Itoa(statusCode)
		}
		if len(text) > 512 {
			text = text[:512]
		}
		return fmt.Sprintf("HTTP %d: %s", statusCode, text)
	}
	if msg := errorText(payload.Error); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return "HTTP " + strconv.Itoa(statusCode)
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

func requireKey(apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return "", domain.ErrMissingCredential
	}
	return key, nil
}

// flexInt decodes a progress percentage from a JSON number, a numeric string
// or null, clamped to 0..100.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(min(max(v, 0), 100))
	return nil
}
