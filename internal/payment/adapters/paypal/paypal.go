package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
)

const defaultAPIBase = "https://api-m.paypal.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paypal"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	clientID, _ := cfg.Config["client_id"].(string)
	clientSecret, _ := cfg.Config["client_secret"].(string)
	webhookID, _ := cfg.Config["webhook_id"].(string)
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	webhookID = strings.TrimSpace(webhookID)
	if clientID == "" || clientSecret == "" || webhookID == "" {
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
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		client:       client,
		apiBase:      base,
	}, nil
}

// Adapter drives the PayPal Orders v2 API. Our intent id is the
// PayPal order id.
type Adapter struct {
	clientID     string
	clientSecret string
	webhookID    string
	client       *http.Client
	apiBase      string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Verify delegates to PayPal's verify-webhook-signature endpoint; the
// transmission headers alone are not provable offline.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	var event json.RawMessage
	if err := json.Unmarshal(payload, &event); err != nil {
		return paymentdomain.ErrInvalidPayload
	}

	verifyReq := map[string]any{
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"webhook_id":        a.webhookID,
		"webhook_event":     event,
	}
	body, err := json.Marshal(verifyReq)
	if err != nil {
		return paymentdomain.ErrUntrustedEvent
	}

	resp, err := a.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, "")
	if err != nil {
		return paymentdomain.ErrGatewayUnavailable
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return paymentdomain.ErrUntrustedEvent
	}
	if result.VerificationStatus != "SUCCESS" {
		return paymentdomain.ErrUntrustedEvent
	}
	return nil
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
	switch strings.TrimSpace(event.EventType) {
	case "PAYMENT.CAPTURE.COMPLETED":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		eventType = paymentdomain.EventTypePaymentFailed
		failureReason = "capture_denied"
	case "CHECKOUT.ORDER.APPROVED":
		// Approval moves no funds. The merchant captures; the resulting
		// capture settles the order.
		var approved orderResource
		if err := json.Unmarshal(event.Resource, &approved); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(approved.ID) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		return a.capture(ctx, approved.ID)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var capture captureResource
	if err := json.Unmarshal(event.Resource, &capture); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	orderID := strings.TrimSpace(capture.SupplementaryData.RelatedIDs.OrderID)
	if orderID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount, currency := capture.Amount.minorUnits()
	occurredAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, event.CreateTime); err == nil {
		occurredAt = t.UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:         "paypal",
		ProviderEventID:  event.ID,
		ProviderIntentID: orderID,
		Type:             eventType,
		Amount:           amount,
		Currency:         currency,
		FailureReason:    failureReason,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}, nil
}

func (a *Adapter) CreateIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.CheckoutSession, error) {
	body, err := json.Marshal(map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderID,
			"custom_id":    req.OrderID,
			"description":  req.Description,
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         req.Amount.StringFixed(2),
			},
		}},
		"payment_source": map[string]any{
			"paypal": map[string]any{
				"experience_context": map[string]string{
					"return_url": req.ReturnURL,
					"cancel_url": req.CancelURL,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", body, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	var order orderResource
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	if order.ID == "" {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	approval := order.link("payer-action")
	if approval == "" {
		approval = order.link("approve")
	}
	if approval == "" {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	return &paymentdomain.CheckoutSession{
		Provider:    "paypal",
		IntentID:    order.ID,
		ApprovalURL: approval,
	}, nil
}

func (a *Adapter) ReturnIntentID(query url.Values) (string, error) {
	// PayPal sends the order id back as "token".
	id := strings.TrimSpace(query.Get("token"))
	if id == "" {
		return "", paymentdomain.ErrUnknownIntent
	}
	return id, nil
}

func (a *Adapter) FetchIntent(ctx context.Context, intentID string) (*paymentdomain.PaymentEvent, error) {
	resp, err := a.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(intentID), nil, "")
	if err != nil {
		return nil, err
	}

	var order orderResource
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	if order.ID == "" {
		return nil, paymentdomain.ErrUnknownIntent
	}

	event := &paymentdomain.PaymentEvent{
		Provider:         "paypal",
		ProviderEventID:  "poll_" + order.ID,
		ProviderIntentID: order.ID,
		OccurredAt:       time.Now().UTC(),
		RawPayload:       resp,
	}
	switch order.Status {
	case "COMPLETED":
		event.Type = paymentdomain.EventTypePaymentSucceeded
	case "APPROVED":
		// The buyer approved but nothing is captured yet; CAPTURE-intent
		// orders stay APPROVED until the merchant captures.
		return a.capture(ctx, order.ID)
	case "VOIDED":
		event.Type = paymentdomain.EventTypePaymentFailed
		event.FailureReason = "order_voided"
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if len(order.PurchaseUnits) > 0 {
		event.Amount, event.Currency = order.PurchaseUnits[0].Amount.minorUnits()
	}
	return event, nil
}

// capture collects the funds for an approved order. The deterministic
// PayPal-Request-Id makes concurrent attempts (webhook plus redirect
// return) collapse into one capture on PayPal's side.
func (a *Adapter) capture(ctx context.Context, orderID string) (*paymentdomain.PaymentEvent, error) {
	resp, err := a.doJSON(ctx, http.MethodPost,
		"/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture",
		[]byte(`{}`), "capture_"+orderID)
	if err != nil {
		return nil, err
	}

	var order orderResource
	if err := json.Unmarshal(resp, &order); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	if order.Status != "COMPLETED" {
		return nil, paymentdomain.ErrEventIgnored
	}

	event := &paymentdomain.PaymentEvent{
		Provider:         "paypal",
		ProviderIntentID: orderID,
		Type:             paymentdomain.EventTypePaymentSucceeded,
		OccurredAt:       time.Now().UTC(),
		RawPayload:       resp,
	}
	if captured := order.firstCapture(); captured != nil {
		event.ProviderEventID = "capture_" + captured.ID
		event.Amount, event.Currency = captured.Amount.minorUnits()
	} else {
		event.ProviderEventID = "capture_" + orderID
		if len(order.PurchaseUnits) > 0 {
			event.Amount, event.Currency = order.PurchaseUnits[0].Amount.minorUnits()
		}
	}
	return event, nil
}

func (a *Adapter) doJSON(ctx context.Context, method, path string, body []byte, idempotencyKey string) ([]byte, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.apiBase+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set("PayPal-Request-Id", idempotencyKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 500 {
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, paymentdomain.ErrUnknownIntent
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("paypal request rejected: %s", http.StatusText(resp.StatusCode))
	}
	return respBody, nil
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.apiBase+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.clientID, a.clientSecret)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", paymentdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 400 {
		return "", paymentdomain.ErrGatewayUnavailable
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil || token.AccessToken == "" {
		return "", paymentdomain.ErrGatewayUnavailable
	}

	a.accessToken = token.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

type webhookEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type captureResource struct {
	ID                string `json:"id"`
	Amount            money  `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type orderResource struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Amount   money `json:"amount"`
		Payments struct {
			Captures []captureResource `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (o orderResource) link(rel string) string {
	for _, l := range o.Links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func (o orderResource) firstCapture() *captureResource {
	for _, unit := range o.PurchaseUnits {
		if len(unit.Payments.Captures) > 0 {
			return &unit.Payments.Captures[0]
		}
	}
	return nil
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func (m money) minorUnits() (int64, string) {
	value, err := decimal.NewFromString(strings.TrimSpace(m.Value))
	if err != nil {
		return 0, strings.ToUpper(strings.TrimSpace(m.CurrencyCode))
	}
	return value.Mul(decimal.NewFromInt(100)).IntPart(), strings.ToUpper(strings.TrimSpace(m.CurrencyCode))
}
