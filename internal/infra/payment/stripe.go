package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"storefront/internal/metrics"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const DefaultTimeout = 10 * time.Second

var ErrUnavailable = errors.New("payment processor unavailable")

type LineItem struct {
	Name       string
	UnitAmount int64 // 最小通貨単位（cent）
	Quantity   int64
}

type CheckoutRequest struct {
	OrderID    string
	Currency   string
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stripe Checkout Sessions APIのクライアント
type StripeClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewStripeClient(baseURL, secretKey string) *StripeClient {
	return &StripeClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(secretKey).
			SetTimeout(DefaultTimeout).
			SetRetryCount(0),
		breaker: newBreaker("stripe"),
	}
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	form := checkoutForm(req)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		var sess CheckoutSession
		var apiErr stripeError

		resp, err := c.http.R().
			SetContext(ctx).
			SetFormDataFromValues(form).
			SetResult(&sess).
			SetError(&apiErr).
			Post("/v1/checkout/sessions")
		if err != nil {
			return nil, fmt.Errorf("stripe request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("stripe %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		if sess.URL == "" {
			return nil, errors.New("stripe returned empty session url")
		}
		return sess, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return CheckoutSession{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return CheckoutSession{}, err
	}
	return out.(CheckoutSession), nil
}

func checkoutForm(req CheckoutRequest) url.Values {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.OrderID)
	form.Set("metadata[order_id]", req.OrderID)

	for i, it := range req.LineItems {
		p := "line_items[" + strconv.Itoa(i) + "]"
		form.Set(p+"[price_data][currency]", req.Currency)
		form.Set(p+"[price_data][product_data][name]", it.Name)
		form.Set(p+"[price_data][unit_amount]", strconv.FormatInt(it.UnitAmount, 10))
		form.Set(p+"[quantity]", strconv.FormatInt(it.Quantity, 10))
	}
	return form
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(state)

			log.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}
