// Package tryonclient talks to the fitcheckr HTTP API.
package tryonclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fitcheckr/fitcheckr/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ErrMissingBaseURL indicates that the client was configured without a server address.
var ErrMissingBaseURL = errors.New("tryonclient: base url is required")

// APIError is a non-2xx reply from the API, other than the 422 no-image outcome.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Options configures the client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	// AdminSecret is sent with admin calls. AdminToken, when set, is sent as a bearer token instead.
	AdminSecret string
	AdminToken  string
}

// Client performs calls against one fitcheckr server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      zerolog.Logger
	adminSecret string
	adminToken  string
}

// New constructs a client. Requests carry no timeout of their own; callers bound them with ctx.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("tryonclient: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      logger,
		adminSecret: opts.AdminSecret,
		adminToken:  opts.AdminToken,
	}, nil
}

// TryOn posts both payloads and returns the normalized result. A 422 reply is a result
// with status no-image-produced, not an error.
func (c *Client) TryOn(ctx context.Context, userImage string, articleImages []string) (models.TryOnResult, error) {
	body := models.TryOnRequest{UserImage: userImage, ArticleImages: articleImages}

	resp, err := c.do(ctx, http.MethodPost, "/api/try-on", body, nil)
	if err != nil {
		return models.TryOnResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnprocessableEntity:
		var out models.TryOnResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return models.TryOnResult{}, fmt.Errorf("tryonclient: decode try-on response: %w", err)
		}
		if resp.StatusCode == http.StatusOK && !out.Success {
			return models.TryOnResult{}, &APIError{Status: resp.StatusCode, Message: "unexpected unsuccessful response"}
		}
		return out.Result(), nil
	default:
		return models.TryOnResult{}, decodeAPIError(resp)
	}
}

// Subscribe adds email to the mailing list.
func (c *Client) Subscribe(ctx context.Context, email string) (models.SubscribeResponse, error) {
	var out models.SubscribeResponse
	resp, err := c.do(ctx, http.MethodPost, "/api/subscribe", models.SubscribeRequest{Email: email}, nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("tryonclient: decode subscribe response: %w", err)
	}
	return out, nil
}

// Subscribers returns the full subscriber list.
func (c *Client) Subscribers(ctx context.Context) (models.AdminResponse, error) {
	var out models.AdminResponse
	query := url.Values{}
	if c.adminToken == "" {
		query.Set("secret", c.adminSecret)
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/admin?"+query.Encode(), nil, c.adminHeaders())
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("tryonclient: decode admin response: %w", err)
	}
	return out, nil
}

// Export streams the subscriber list as CSV into w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	body := models.AdminRequest{Action: "export"}
	if c.adminToken == "" {
		body.Secret = c.adminSecret
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/admin", body, c.adminHeaders())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("tryonclient: read export: %w", err)
	}
	return nil
}

func (c *Client) adminHeaders() http.Header {
	if c.adminToken == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.adminToken)
	return h
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("tryonclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("tryonclient: build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Str("request_id", resp.Header.Get(middleware.RequestIDHeader)).
		Dur("latency", time.Since(start)).
		Msg("api call")
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body models.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}
