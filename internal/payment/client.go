package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/pkg/circuitbreaker"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// ProcessorOrder is the processor's view of an order.
type ProcessorOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status"`
}

type createOrderBody struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	Notes          map[string]string `json:"notes,omitempty"`
	PaymentCapture int               `json:"payment_capture"`
}

// Client talks to the processor's REST API.
type Client struct {
	baseURL   *url.URL
	keyID     string
	keySecret string
	http      *http.Client
	breaker   *circuitbreaker.Breaker[*ProcessorOrder]
}

func NewClient(baseURL, keyID, keySecret string, httpClient *http.Client, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid processor base url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	cfg := circuitbreaker.DefaultConfig()
	cfg.Ignore = func(err error) bool {
		var pe *ProcessorError
		return errors.As(err, &pe) && !pe.Temporary()
	}

	return &Client{
		baseURL:   u,
		keyID:     keyID,
		keySecret: keySecret,
		http:      httpClient,
		breaker:   circuitbreaker.New[*ProcessorOrder]("payment-processor", cfg, log),
	}, nil
}

// CreateOrder registers an order of amountMinor with the processor.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*ProcessorOrder, error) {
	payload, err := json.Marshal(createOrderBody{
		Amount:         amountMinor,
		Currency:       currency,
		Receipt:        receipt,
		Notes:          notes,
		PaymentCapture: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}

	return c.breaker.Execute(func() (*ProcessorOrder, error) {
		resp, err := c.do(ctx, http.MethodPost, "orders", payload)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &ProcessorError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		var order ProcessorOrder
		if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
			return nil, fmt.Errorf("decode processor order: %w", err)
		}
		if order.ID == "" {
			return nil, errors.New("processor returned an order without id")
		}
		return &order, nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.http.Do(req)
}

func httpStatus(code int) string {
	if text := http.StatusText(code); text != "" {
		return strconv.Itoa(code) + " " + text
	}
	return strconv.Itoa(code)
}
