package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Config: map[string]any{
			"secret_key":     "sk_test_123",
			"webhook_secret": testWebhookSecret,
		},
		BaseURL: baseURL,
	})
	require.NoError(t, err)
	return adapter.(*Adapter)
}

func sign(payload []byte, secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerify_ValidSignature(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", sign(payload, testWebhookSecret, "1700000000"))
	assert.NoError(t, adapter.Verify(context.Background(), payload, headers))
}

func TestVerify_BadSignature(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", sign(payload, "whsec_wrong", "1700000000"))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrUntrustedEvent)

	headers.Del("Stripe-Signature")
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrUntrustedEvent)
}

func TestVerify_TamperedPayload(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{"id":"evt_1","amount":100}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", sign(payload, testWebhookSecret, "1700000000"))

	tampered := []byte(`{"id":"evt_1","amount":999}`)
	assert.ErrorIs(t, adapter.Verify(context.Background(), tampered, headers), paymentdomain.ErrUntrustedEvent)
}

func TestParse_SessionCompleted(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_test_1",
			"payment_status": "paid",
			"amount_total": 999,
			"currency": "usd"
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentSucceeded, event.Type)
	assert.Equal(t, "cs_test_1", event.ProviderIntentID)
	assert.Equal(t, int64(999), event.Amount)
	assert.Equal(t, "USD", event.Currency)
}

func TestParse_UnpaidCompletionIgnored(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "payment_status": "unpaid"}}
	}`)

	_, err := adapter.Parse(context.Background(), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestParse_SessionExpired(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{
		"id": "evt_2",
		"type": "checkout.session.expired",
		"data": {"object": {"id": "cs_test_1", "payment_status": "unpaid"}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypePaymentFailed, event.Type)
	assert.Equal(t, "session_expired", event.FailureReason)
}

func TestParse_UnrelatedEventIgnored(t *testing.T) {
	adapter := newTestAdapter(t, "")
	payload := []byte(`{"id": "evt_3", "type": "customer.created", "data": {"object": {}}}`)

	_, err := adapter.Parse(context.Background(), payload)
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
}

func TestCreateIntent_SendsIdempotencyKey(t *testing.T) {
	var gotKey, gotSuccessURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotKey = r.Header.Get("Idempotency-Key")
		gotSuccessURL = r.PostForm.Get("success_url")
		assert.Equal(t, "999", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		fmt.Fprint(w, `{"id":"cs_test_1","url":"https://checkout.stripe.test/pay/cs_test_1"}`)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	session, err := adapter.CreateIntent(context.Background(), paymentdomain.CreateIntentRequest{
		OrderID:        "42",
		Amount:         decimal.RequireFromString("9.99"),
		Currency:       "USD",
		Description:    "Glass Harbor: Driftworks",
		IdempotencyKey: "01HTESTKEY",
		ReturnURL:      "http://localhost:8080/api/payments/return/stripe",
		CancelURL:      "http://localhost:8080/api/orders/42",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.IntentID)
	assert.Equal(t, "01HTESTKEY", gotKey)
	assert.Contains(t, gotSuccessURL, "session_id={CHECKOUT_SESSION_ID}")
}

func TestCreateIntent_GatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.CreateIntent(context.Background(), paymentdomain.CreateIntentRequest{
		OrderID:  "42",
		Amount:   decimal.RequireFromString("9.99"),
		Currency: "USD",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayUnavailable)
}

func TestReturnIntentID(t *testing.T) {
	adapter := newTestAdapter(t, "")

	id, err := adapter.ReturnIntentID(url.Values{"session_id": []string{"cs_test_1"}})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", id)

	_, err = adapter.ReturnIntentID(url.Values{})
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownIntent)
}
