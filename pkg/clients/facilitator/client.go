// Package facilitator implements the HTTP client for the external x402
// facilitator's verify and settle endpoints.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	facilitatorapi "github.com/protocolwhisper/paymeskill/pkg/api/facilitator"
	"github.com/protocolwhisper/paymeskill/pkg/clients"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
)

// Client represents a facilitator API client
type Client struct {
	baseURL     string
	verifyPath  string
	settlePath  string
	bearerToken string
	httpClient  *http.Client
	breaker     *clients.CircuitBreaker
	logger      logging.Logger
}

// Config represents the configuration for the facilitator client
type Config struct {
	BaseURL              string
	VerifyPath           string
	SettlePath           string
	BearerToken          string
	Timeout              time.Duration
	Logger               logging.Logger
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// NewClient creates a new facilitator API client. Calls are bounded by the
// configured timeout and guarded by a circuit breaker; there is no automatic
// retry, an unconvinced or unreachable facilitator denies the payment.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 12 * time.Second
	}
	if config.VerifyPath == "" {
		config.VerifyPath = "/verify"
	}
	if config.SettlePath == "" {
		config.SettlePath = "/settle"
	}

	cbConfig := clients.DefaultCircuitBreakerConfig()
	cbConfig.Name = "facilitator"
	cbConfig.Logger = config.Logger
	if config.CircuitBreakerConfig != nil {
		cbConfig = *config.CircuitBreakerConfig
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: clients.DefaultTransport(),
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		verifyPath:  config.VerifyPath,
		settlePath:  config.SettlePath,
		bearerToken: config.BearerToken,
		httpClient:  httpClient,
		breaker:     clients.NewCircuitBreaker(cbConfig),
		logger:      config.Logger,
	}
}

// Verify asks the facilitator whether a payment header satisfies the
// requirement.
func (c *Client) Verify(ctx context.Context, req *facilitatorapi.VerifyRequest) (*facilitatorapi.VerifyResponse, error) {
	var verdict facilitatorapi.VerifyResponse
	if err := c.post(ctx, c.verifyPath, req, &verdict); err != nil {
		return nil, err
	}
	return &verdict, nil
}

// Settle asks the facilitator to settle a verified payment.
func (c *Client) Settle(ctx context.Context, req *facilitatorapi.SettleRequest) (*facilitatorapi.SettleResponse, error) {
	var outcome facilitatorapi.SettleResponse
	if err := c.post(ctx, c.settlePath, req, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.breaker.Call(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.bearerToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to call facilitator: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return fmt.Errorf("facilitator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode facilitator response: %w", err)
		}
		return nil
	})
}
