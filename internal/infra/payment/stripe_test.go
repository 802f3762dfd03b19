package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{
		OrderID:  "o1",
		Currency: "usd",
		LineItems: []LineItem{
			{Name: "Shirt", UnitAmount: 10000, Quantity: 2},
			{Name: "Delivery Charges", UnitAmount: 1000, Quantity: 1},
		},
		SuccessURL: "http://shop.test/verify?orderId=o1&success=true",
		CancelURL:  "http://shop.test/verify?orderId=o1&success=false",
	}
}

func TestStripeClient_CreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "o1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "10000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "2", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "Delivery Charges", r.PostForm.Get("line_items[1][price_data][product_data][name]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://checkout.test/cs_1"}`))
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test")
	sess, err := c.CreateCheckoutSession(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	assert.Equal(t, "https://checkout.test/cs_1", sess.URL)
}

func TestStripeClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad currency"}}`))
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test")
	_, err := c.CreateCheckoutSession(context.Background(), checkoutReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad currency")
}

func TestStripeClient_BreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewStripeClient(srv.URL, "sk_test")
	for i := 0; i < 5; i++ {
		_, err := c.CreateCheckoutSession(context.Background(), checkoutReq())
		require.Error(t, err)
	}

	_, err := c.CreateCheckoutSession(context.Background(), checkoutReq())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 5, calls)
}
