// Package mtnapi is a small client for the MTN MoMo collection API. It only
// covers what reconciliation needs: an access token and the status of a
// request-to-pay by reference.
package mtnapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	// ErrMissingCredentials means the client cannot talk to the real API
	ErrMissingCredentials = errors.New("mtnapi: missing API credentials")
	// ErrUnavailable covers transport failures, 5xx, 429 and rejected tokens.
	// Callers may retry.
	ErrUnavailable = errors.New("mtnapi: provider unavailable")
)

// Status values observed on the collection API
const (
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
	StatusPending    = "PENDING"
	// StatusNotFound is synthesized for a 404 on the status endpoint
	StatusNotFound = "NOT_FOUND"
)

// Options configures a Client
type Options struct {
	BaseURL           string
	APIKey            string // API user
	APISecret         string // API key
	SubscriptionKey   string
	TargetEnvironment string
	MockAPI           bool
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client represents an MTN API client
type Client struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	SubscriptionKey   string
	TargetEnvironment string
	MockAPI           bool
	client            *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// PaymentStatus represents a request-to-pay status response from the MTN API
type PaymentStatus struct {
	Reference              string          `json:"externalId"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	Status                 string          `json:"status"`
	RawReason              json.RawMessage `json:"reason,omitempty"`
}

// Reason returns the failure reason, which the API sends either as a string
// or as an object with code/message
func (p *PaymentStatus) Reason() string {
	if len(p.RawReason) == 0 || string(p.RawReason) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(p.RawReason, &s); err == nil {
		return s
	}

	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.RawReason, &obj); err == nil {
		if obj.Message != "" && obj.Code != "" {
			return obj.Code + ": " + obj.Message
		}
		if obj.Code != "" {
			return obj.Code
		}
		return obj.Message
	}
	return string(p.RawReason)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewClient creates a new MTN API client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	targetEnv := opts.TargetEnvironment
	if targetEnv == "" {
		targetEnv = "sandbox"
	}

	return &Client{
		BaseURL:           strings.TrimRight(opts.BaseURL, "/"),
		APIKey:            opts.APIKey,
		APISecret:         opts.APISecret,
		SubscriptionKey:   opts.SubscriptionKey,
		TargetEnvironment: targetEnv,
		MockAPI:           opts.MockAPI,
		client:            httpClient,
	}
}

// Validate reports missing credentials. Mock clients are always valid.
func (c *Client) Validate() error {
	if c.MockAPI {
		return nil
	}

	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "base URL")
	}
	if c.APIKey == "" {
		missing = append(missing, "API user")
	}
	if c.APISecret == "" {
		missing = append(missing, "API key")
	}
	if c.SubscriptionKey == "" {
		missing = append(missing, "subscription key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// GetPaymentStatus retrieves the status of the request-to-pay identified by reference
func (c *Client) GetPaymentStatus(ctx context.Context, reference string) (*PaymentStatus, error) {
	if c.MockAPI {
		return c.mockGetPaymentStatus(reference), nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.BaseURL + "/collection/v1_0/requesttopay/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("mtnapi: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", c.TargetEnvironment)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.SubscriptionKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var status PaymentStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return nil, fmt.Errorf("%w: decode status response: %v", ErrUnavailable, err)
		}
		if status.Reference == "" {
			status.Reference = reference
		}
		return &status, nil
	case resp.StatusCode == http.StatusNotFound:
		return &PaymentStatus{Reference: reference, Status: StatusNotFound}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.clearToken()
		return nil, fmt.Errorf("%w: access token rejected", ErrUnavailable)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status endpoint returned %d", ErrUnavailable, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mtnapi: status endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// accessToken returns a cached token, fetching a new one shortly before expiry
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/collection/token/", nil)
	if err != nil {
		return "", fmt.Errorf("mtnapi: build token request: %w", err)
	}
	req.SetBasicAuth(c.APIKey, c.APISecret)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.SubscriptionKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: token endpoint rejected credentials (%d)", ErrMissingCredentials, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrUnavailable, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnavailable)
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	// refresh a little early so a token never expires mid-batch
	if ttl > time.Minute {
		ttl -= 30 * time.Second
	}
	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(ttl)
	return c.token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// mockGetPaymentStatus mocks the status endpoint for local runs. References
// starting with PAID or SUCC report SUCCESSFUL, FAIL report FAILED, anything
// else PENDING.
func (c *Client) mockGetPaymentStatus(reference string) *PaymentStatus {
	status := &PaymentStatus{
		Reference: reference,
		Status:    StatusPending,
	}
	upper := strings.ToUpper(reference)
	switch {
	case strings.HasPrefix(upper, "PAID"), strings.HasPrefix(upper, "SUCC"):
		status.Status = StatusSuccessful
		status.FinancialTransactionID = fmt.Sprintf("MOCK-%d", time.Now().UnixNano())
	case strings.HasPrefix(upper, "FAIL"):
		status.Status = StatusFailed
		status.RawReason = json.RawMessage(`"APPROVAL_REJECTED"`)
	}
	return status
}
