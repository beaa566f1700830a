package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/sonic7adarsh/bharat-shop-fulfillment/internal/metrics"
)

// Client talks to the live payment gateway over HTTP. Every call runs through
// a circuit breaker and carries the configured timeout, so a degraded gateway
// cannot stall the refund coordinator.
type Client struct {
	http      *resty.Client
	breaker   *gobreaker.CircuitBreaker
	keySecret string
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(keyID, keySecret).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.GatewayBreakerState.Set(state)

			log.WithFields(log.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("gateway circuit breaker state changed")
		},
	})

	return &Client{
		http:      httpClient,
		breaker:   breaker,
		keySecret: keySecret,
	}
}

type orderResponse struct {
	ID string `json:"id"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error) {
	var out orderResponse
	err := c.execute("create_order", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{
				"amount":   amount.StringFixed(2),
				"currency": currency,
				"receipt":  receipt,
			}).
			SetResult(&out).
			SetError(&errorResponse{}).
			Post("/v1/orders")
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil {
		return "", &Error{Op: "create_order", Err: err}
	}
	return out.ID, nil
}

func (c *Client) Capture(ctx context.Context, paymentRef string, amount decimal.Decimal) error {
	err := c.execute("capture", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"amount": amount.StringFixed(2)}).
			SetError(&errorResponse{}).
			Post(fmt.Sprintf("/v1/payments/%s/capture", paymentRef))
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil {
		return &Error{Op: "capture", Err: err}
	}
	return nil
}

func (c *Client) Refund(ctx context.Context, paymentRef string, amount decimal.Decimal) (string, error) {
	var out refundResponse
	err := c.execute("refund", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"amount": amount.StringFixed(2)}).
			SetResult(&out).
			SetError(&errorResponse{}).
			Post(fmt.Sprintf("/v1/payments/%s/refund", paymentRef))
		if err != nil {
			return err
		}
		return checkResponse(resp)
	})
	if err != nil {
		return "", &Error{Op: "refund", Err: err}
	}
	return out.ID, nil
}

// VerifySignature checks an HMAC-SHA256 hex signature computed over the raw
// payload with the key secret.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	return verifyHMAC(c.keySecret, payload, signature)
}

func (c *Client) execute(operation string, fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.GatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker open: %w", err)
	}
	return err
}

func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	if apiErr, ok := resp.Error().(*errorResponse); ok && apiErr.Error != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return fmt.Errorf("status %d", resp.StatusCode())
}

func signHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(secret string, payload []byte, signature string) bool {
	expected := signHMAC(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
