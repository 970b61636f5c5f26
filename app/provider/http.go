package provider

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
)

type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

// HTTPGateway talks to a generic charge API:
//
//	POST {base}/charges          create a charge keyed by our reference id
//	GET  {base}/charges/{ref}    authoritative status of a prior attempt
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, input *ChargeInput) (*ChargeResult, error) {
	if g.cfg.BaseURL == "" {
		return nil, errors.New("provider base url is not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"referenceId":     input.ReferenceID,
		"merchantId":      input.MerchantID,
		"customerId":      input.CustomerID,
		"amountCents":     input.AmountCents,
		"currency":        input.Currency,
		"paymentMethodId": input.PaymentMethodID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/charges", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Timeout, reset, DNS mid-flight: the request may have reached the
		// provider, so the outcome is unknown, never a failure.
		return &ChargeResult{Outcome: OutcomeUnknown, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ChargeResult{Outcome: OutcomeUnknown, Reason: err.Error()}, nil
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			ChargeID string `json:"chargeId"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return &ChargeResult{Outcome: OutcomeUnknown, Reason: "unparseable success response"}, nil
		}
		return &ChargeResult{Outcome: OutcomeSucceeded, ProviderChargeID: out.ChargeID}, nil
	case isDefiniteRejection(resp.StatusCode):
		return &ChargeResult{Outcome: OutcomeFailed, Reason: rejectionReason(resp.StatusCode, body)}, nil
	default:
		// 408, 429, 5xx: the provider did not positively rule out execution.
		return &ChargeResult{Outcome: OutcomeUnknown, Reason: fmt.Sprintf("provider returned status=%d", resp.StatusCode)}, nil
	}
}

func (g *HTTPGateway) ChargeStatus(ctx context.Context, referenceID string) (*ChargeResult, error) {
	if g.cfg.BaseURL == "" {
		return nil, errors.New("provider base url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/charges/"+url.PathEscape(referenceID), nil)
	if err != nil {
		return nil, err
	}
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &ChargeResult{Outcome: OutcomeUnknown, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ChargeResult{Outcome: OutcomeUnknown, Reason: err.Error()}, nil
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// The provider has no record of the attempt: the charge never executed.
		return &ChargeResult{Outcome: OutcomeFailed, Reason: "no charge found for reference"}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			Status   string `json:"status"`
			ChargeID string `json:"chargeId"`
			Reason   string `json:"reason"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return &ChargeResult{Outcome: OutcomeUnknown, Reason: "unparseable status response"}, nil
		}
		switch strings.ToLower(out.Status) {
		case "succeeded":
			return &ChargeResult{Outcome: OutcomeSucceeded, ProviderChargeID: out.ChargeID}, nil
		case "failed":
			return &ChargeResult{Outcome: OutcomeFailed, Reason: out.Reason}, nil
		default:
			return &ChargeResult{Outcome: OutcomeUnknown, Reason: "provider reports status=" + out.Status}, nil
		}
	default:
		return &ChargeResult{Outcome: OutcomeUnknown, Reason: fmt.Sprintf("provider returned status=%d", resp.StatusCode)}, nil
	}
}

// isDefiniteRejection reports whether a status code positively means the
// provider refused to execute the charge. 408 and 429 are excluded: a
// gateway-timeout or throttle response says nothing about execution.
func isDefiniteRejection(statusCode int) bool {
	if statusCode < 400 || statusCode >= 500 {
		return false
	}
	return statusCode != http.StatusRequestTimeout && statusCode != http.StatusTooManyRequests
}

func rejectionReason(statusCode int, body []byte) string {
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err == nil && strings.TrimSpace(out.Error) != "" {
		return out.Error
	}
	return fmt.Sprintf("provider rejected charge: status=%d", statusCode)
}
