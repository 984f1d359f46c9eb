package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
)

const defaultAPIBase = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secretKey, _ := cfg.Config["secret_key"].(string)
	webhookSecret, _ := cfg.Config["webhook_secret"].(string)
	secretKey = strings.TrimSpace(secretKey)
	webhookSecret = strings.TrimSpace(webhookSecret)
	if secretKey == "" || webhookSecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultAPIBase
	}

	return &Adapter{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		client:        client,
		apiBase:       base,
	}, nil
}

// Adapter drives Stripe Checkout. Our intent id is the checkout
// session id (cs_...).
type Adapter struct {
	secretKey     string
	webhookSecret string
	client        *http.Client
	apiBase       string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrUntrustedEvent
	}

	timestamp, signatures, ok := parseSignatureHeader(sigHeader)
	if !ok {
		return paymentdomain.ErrUntrustedEvent
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrUntrustedEvent
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType, failureReason string
	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "checkout.session.async_payment_failed":
		eventType = paymentdomain.EventTypePaymentFailed
		failureReason = "payment_failed"
	case "checkout.session.expired":
		eventType = paymentdomain.EventTypePaymentFailed
		failureReason = "session_expired"
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	// completed fires for unpaid async methods too; only a paid session
	// settles the order.
	if eventType == paymentdomain.EventTypePaymentSucceeded && session.PaymentStatus == "unpaid" {
		return nil, paymentdomain.ErrEventIgnored
	}

	return &paymentdomain.PaymentEvent{
		Provider:         "stripe",
		ProviderEventID:  event.ID,
		ProviderIntentID: session.ID,
		Type:             eventType,
		Amount:           session.AmountTotal,
		Currency:         strings.ToUpper(strings.TrimSpace(session.Currency)),
		FailureReason:    failureReason,
		OccurredAt:       eventTime(event.Created),
		RawPayload:       payload,
	}, nil
}

func (a *Adapter) CreateIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.CheckoutSession, error) {
	// Stripe substitutes the session id into the success URL, which is
	// how the redirect-return handler finds the intent.
	successURL := req.ReturnURL + "?session_id={CHECKOUT_SESSION_ID}"
	if strings.Contains(req.ReturnURL, "?") {
		successURL = req.ReturnURL + "&session_id={CHECKOUT_SESSION_ID}"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", successURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.OrderID)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(minorUnits(req), 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.apiBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.SetBasicAuth(a.secretKey, "")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 500 {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe checkout session rejected: %s", http.StatusText(resp.StatusCode))
	}

	var session checkoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	if session.ID == "" || session.URL == "" {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	return &paymentdomain.CheckoutSession{
		Provider:    "stripe",
		IntentID:    session.ID,
		ApprovalURL: session.URL,
	}, nil
}

func (a *Adapter) ReturnIntentID(query url.Values) (string, error) {
	id := strings.TrimSpace(query.Get("session_id"))
	if id == "" {
		return "", paymentdomain.ErrUnknownIntent
	}
	return id, nil
}

func (a *Adapter) FetchIntent(ctx context.Context, intentID string) (*paymentdomain.PaymentEvent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.apiBase+"/v1/checkout/sessions/"+url.PathEscape(intentID), nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(a.secretKey, "")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, paymentdomain.ErrUnknownIntent
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 400 {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	var session checkoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	event := &paymentdomain.PaymentEvent{
		Provider:         "stripe",
		ProviderEventID:  "poll_" + session.ID,
		ProviderIntentID: session.ID,
		Amount:           session.AmountTotal,
		Currency:         strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:       time.Now().UTC(),
		RawPayload:       body,
	}
	switch {
	case session.PaymentStatus == "paid":
		event.Type = paymentdomain.EventTypePaymentSucceeded
	case session.Status == "expired":
		event.Type = paymentdomain.EventTypePaymentFailed
		event.FailureReason = "session_expired"
	default:
		// Buyer bounced back before paying; nothing settled yet.
		return nil, paymentdomain.ErrEventIgnored
	}
	return event, nil
}

type webhookEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    webhookEventData `json:"data"`
}

type webhookEventData struct {
	Object json.RawMessage `json:"object"`
}

type checkoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

func parseSignatureHeader(header string) (string, []string, bool) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "t":
			timestamp = strings.TrimSpace(keyValue[1])
		case "v1":
			signatures = append(signatures, strings.TrimSpace(keyValue[1]))
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, false
	}
	return timestamp, signatures, true
}

func eventTime(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

var hundred = decimal.NewFromInt(100)

// minorUnits converts a decimal major-unit amount to the smallest
// currency unit. Zero-decimal currencies are not sold on the store.
func minorUnits(req paymentdomain.CreateIntentRequest) int64 {
	return req.Amount.Mul(hundred).IntPart()
}
