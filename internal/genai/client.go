// Package genai wraps the Gemini generateContent endpoint for manga image
// generation. The response is a heterogeneous list of parts (text or inline
// base64 image data); the client collects image parts into data URLs and
// retries only on the service's rate-limit signal.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mangagen/internal/infra"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash-exp"

	// maxAttempts bounds the rate-limit retry loop: at most 3 calls total.
	maxAttempts = 3
)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client calls Gemini generateContent.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger

	// backoffBase is the delay before the first retry; each further retry
	// doubles it (1s, 2s, ...). Overridable in tests.
	backoffBase time.Duration
}

// Output is the normalized generation result: every image part as a data
// URL plus all text parts joined with newlines.
type Output struct {
	ImageURLs []string
	Text      string
}

// RateLimitError is the remote throttling signal. It is the only error the
// client retries on.
type RateLimitError struct {
	Status  int
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("gemini rate limited (status %d): %s", e.Status, e.Message)
}

// APIError is any non-throttling failure reported by the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

// NoImageError means the call succeeded but no image part survived
// filtering. Text carries whatever the model said instead.
type NoImageError struct {
	Text string
}

func (e *NoImageError) Error() string {
	if e.Text == "" {
		return "gemini returned no image content"
	}
	return "gemini returned no image content: " + e.Text
}

// generatePart is one entry of the heterogeneous response: exactly one of
// Text or InlineData is set.
type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts,omitempty"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content generateContent `json:"content"`
	} `json:"candidates"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. A nil HTTP client gets a
// reusable one with a generation-friendly timeout.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		model:       model,
		httpClient:  httpClient,
		logger:      logger,
		backoffBase: time.Second,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate submits the prompt and returns the collected image and text
// parts. It retries up to two more times, with exponential backoff, when
// the service signals rate limiting; any other failure propagates
// immediately. A response without image parts fails with NoImageError.
func (c *Client) Generate(ctx context.Context, prompt string) (*Output, error) {
	var lastRateLimit *RateLimitError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := c.attempt(ctx, prompt)
		if err == nil {
			return out, nil
		}
		rl, ok := asRateLimit(err)
		if !ok {
			return nil, err
		}
		lastRateLimit = rl
		if attempt == maxAttempts {
			break
		}
		delay := c.backoffBase << (attempt - 1)
		c.logger.Warn().
			Int("attempt", attempt).
			Dur("backoff", delay).
			Str("model", c.model).
			Msg("genai: rate limited, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastRateLimit
}

// attempt performs a single generateContent call.
func (c *Client) attempt(ctx context.Context, prompt string) (*Output, error) {
	payload := generateRequest{
		Contents: []generateContent{{
			Role:  "user",
			Parts: []generatePart{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return collectParts(decoded)
}

// collectParts filters the part list: inline image data becomes a data URL,
// text parts are joined with newlines. Zero surviving images is a failure
// carrying the collected text as detail.
func collectParts(resp generateResponse) (*Output, error) {
	var (
		imageURLs []string
		texts     []string
	)
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.InlineData != nil && part.InlineData.Data != "":
				if _, err := base64.StdEncoding.DecodeString(part.InlineData.Data); err != nil {
					continue
				}
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				imageURLs = append(imageURLs, fmt.Sprintf("data:%s;base64,%s", mime, part.InlineData.Data))
			case part.Text != "":
				texts = append(texts, part.Text)
			}
		}
	}
	text := strings.Join(texts, "\n")
	if len(imageURLs) == 0 {
		return nil, &NoImageError{Text: text}
	}
	return &Output{ImageURLs: imageURLs, Text: text}, nil
}

func decodeAPIError(resp *http.Response) error {
	message := ""
	status := ""
	var apiErr apiErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &apiErr); err == nil {
		message = apiErr.Error.Message
		status = apiErr.Error.Status
	}
	if message == "" {
		message = strings.TrimSpace(string(data))
	}
	if resp.StatusCode == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" {
		return &RateLimitError{Status: resp.StatusCode, Message: message}
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}

func asRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
