// Package authority is the HTTPS client for the hosted license
// authority. All gating calls through it fail closed: a timeout, a
// network fault, or an open circuit denies rather than grants.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sidecue/sidecue/internal/licensing/domain"
)

// Client calls the remote authority endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a client. timeout bounds each request end to end.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "license-authority",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// ValidateLicense calls POST /validate-license. Invalid keys and device
// limit refusals come back as structured results; transport faults
// surface as ErrAuthorityUnavailable.
func (c *Client) ValidateLicense(ctx context.Context, licenseKey, deviceID, version string) (*domain.ValidationResult, error) {
	payload := map[string]string{"licenseKey": licenseKey, "deviceId": deviceID, "version": version}
	body, err := c.post(ctx, "/validate-license", payload, nil)
	if err != nil {
		return nil, err
	}
	var result domain.ValidationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding validation response: %w", err)
	}
	return &result, nil
}

// UseCredit calls POST /use-credit. An exhausted allowance (HTTP 429)
// is a structured refusal, not an error.
func (c *Client) UseCredit(ctx context.Context, licenseKey string) (*domain.CreditResult, error) {
	var refusal *domain.CreditResult
	body, err := c.post(ctx, "/use-credit", map[string]string{"licenseKey": licenseKey}, func(status int) bool {
		switch status {
		case http.StatusOK:
			return true
		case http.StatusTooManyRequests:
			refusal = &domain.CreditResult{
				Success:    false,
				Message:    "Daily limit reached",
				ReasonCode: domain.ReasonQuotaExceeded,
			}
			return true
		case http.StatusUnauthorized:
			refusal = &domain.CreditResult{
				Success:    false,
				Message:    "Invalid license",
				ReasonCode: domain.ReasonInvalidKey,
			}
			return true
		default:
			return false
		}
	})
	if err != nil {
		return nil, err
	}
	if refusal != nil {
		return refusal, nil
	}
	var result domain.CreditResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding credit response: %w", err)
	}
	return &result, nil
}

// Playbooks calls GET /playbooks and returns the tier-filtered playbook
// payload verbatim.
func (c *Client) Playbooks(ctx context.Context, licenseKey string) (json.RawMessage, error) {
	endpoint := c.baseURL + "/playbooks?licenseKey=" + url.QueryEscape(licenseKey)
	body, err := c.execute(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, acceptStatus func(int) bool) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return c.execute(ctx, http.MethodPost, c.baseURL+path, encoded, acceptStatus)
}

func (c *Client) execute(ctx context.Context, method, endpoint string, payload []byte, acceptStatus func(int) bool) ([]byte, error) {
	if acceptStatus == nil {
		acceptStatus = func(status int) bool { return status == http.StatusOK }
	}
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if !acceptStatus(resp.StatusCode) {
			return nil, fmt.Errorf("authority returned %d: %s", resp.StatusCode, raw)
		}
		return raw, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthorityUnavailable, err)
	}
	return body, nil
}
