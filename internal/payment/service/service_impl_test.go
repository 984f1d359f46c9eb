package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	cartdomain "github.com/soundcrate/soundcrate/internal/cart/domain"
	cartrepo "github.com/soundcrate/soundcrate/internal/cart/repository"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	catalogrepo "github.com/soundcrate/soundcrate/internal/catalog/repository"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	librarydomain "github.com/soundcrate/soundcrate/internal/library/domain"
	libraryrepo "github.com/soundcrate/soundcrate/internal/library/repository"
	libraryservice "github.com/soundcrate/soundcrate/internal/library/service"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	orderrepo "github.com/soundcrate/soundcrate/internal/order/repository"
	orderservice "github.com/soundcrate/soundcrate/internal/order/service"
	"github.com/soundcrate/soundcrate/internal/payment/adapters"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	paymentrepo "github.com/soundcrate/soundcrate/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeAdapter satisfies the provider contract without any network.
type fakeAdapter struct {
	verifyErr   error
	parseEvent  *paymentdomain.PaymentEvent
	parseErr    error
	session     *paymentdomain.CheckoutSession
	createErr   error
	createCalls int
	fetchEvent  *paymentdomain.PaymentEvent
	fetchErr    error
}

type fakeFactory struct {
	name    string
	adapter *fakeAdapter
}

func (f *fakeFactory) Provider() string { return f.name }
func (f *fakeFactory) NewAdapter(paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	return f.adapter, nil
}

func (a *fakeAdapter) Verify(context.Context, []byte, http.Header) error {
	return a.verifyErr
}

func (a *fakeAdapter) Parse(context.Context, []byte) (*paymentdomain.PaymentEvent, error) {
	return a.parseEvent, a.parseErr
}

func (a *fakeAdapter) CreateIntent(context.Context, paymentdomain.CreateIntentRequest) (*paymentdomain.CheckoutSession, error) {
	a.createCalls++
	return a.session, a.createErr
}

func (a *fakeAdapter) ReturnIntentID(query url.Values) (string, error) {
	id := query.Get("token")
	if id == "" {
		return "", paymentdomain.ErrUnknownIntent
	}
	return id, nil
}

func (a *fakeAdapter) FetchIntent(context.Context, string) (*paymentdomain.PaymentEvent, error) {
	return a.fetchEvent, a.fetchErr
}

type paymentFixture struct {
	svc      *Service
	orderSvc orderdomain.Service
	library  librarydomain.Service
	adapter  *fakeAdapter
	registry *adapters.Registry
	db       *gorm.DB
	node     *snowflake.Node
}

func setupPaymentTest(t *testing.T) *paymentFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	stripLock := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_strip_lock", stripLock))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_strip_lock_row", stripLock))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Release{},
		&catalogdomain.Product{},
		&cartdomain.Item{},
		&orderdomain.Order{},
		&orderdomain.LineItem{},
		&librarydomain.Entry{},
		&paymentdomain.EventRecord{},
		&paymentdomain.IntentRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	librarySvc := libraryservice.NewService(libraryservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: libraryrepo.Provide(),
	})
	orderSvc := orderservice.NewService(orderservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        orderrepo.Provide(),
		CartRepo:    cartrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Library:     librarySvc,
	})

	adapter := &fakeAdapter{}
	registry := adapters.NewRegistry()
	require.NoError(t, registry.Register(&fakeFactory{name: "fakepay", adapter: adapter}, paymentdomain.AdapterConfig{}))

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Cfg:      config.Config{BaseURL: "http://localhost:8080"},
		Repo:     paymentrepo.Provide(),
		OrderSvc: orderSvc,
		Registry: registry,
	}).(*Service)

	return &paymentFixture{
		svc:      svc,
		orderSvc: orderSvc,
		library:  librarySvc,
		adapter:  adapter,
		registry: registry,
		db:       db,
		node:     node,
	}
}

// createPendingOrder seeds a paid release, puts it in the cart, and
// freezes it into a pending order.
func (f *paymentFixture) createPendingOrder(t *testing.T, userID string) *orderdomain.Order {
	t.Helper()
	ctx := context.Background()

	release := catalogdomain.Release{
		ID:        f.node.Generate(),
		Artist:    "Glass Harbor",
		Title:     "Driftworks",
		Slug:      fmt.Sprintf("driftworks-%d", f.node.Generate()),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(&release).Error)

	base := decimal.RequireFromString("9.99")
	product := catalogdomain.Product{
		ID:           f.node.Generate(),
		ReleaseID:    release.ID,
		PricingModel: catalogdomain.PricingPaid,
		BasePrice:    &base,
		Currency:     "USD",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(&product).Error)

	now := time.Now().UTC()
	require.NoError(t, cartrepo.Provide().Upsert(ctx, f.db, &cartdomain.Item{
		ID:        f.node.Generate(),
		UserID:    userID,
		ProductID: product.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	order, err := f.orderSvc.Create(ctx, userID)
	require.NoError(t, err)
	return order
}

func successEvent(intentID, eventID string) *paymentdomain.PaymentEvent {
	return &paymentdomain.PaymentEvent{
		Provider:         "fakepay",
		ProviderEventID:  eventID,
		ProviderIntentID: intentID,
		Type:             paymentdomain.EventTypePaymentSucceeded,
		Amount:           999,
		Currency:         "USD",
		OccurredAt:       time.Now().UTC(),
		RawPayload:       []byte(`{"ok":true}`),
	}
}

func TestInitiate_AttachesIntent(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	f.adapter.session = &paymentdomain.CheckoutSession{
		Provider:    "fakepay",
		IntentID:    "intent_1",
		ApprovalURL: "https://pay.example/intent_1",
	}

	session, err := f.svc.Initiate(ctx, "user-1", order.ID, "fakepay")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/intent_1", session.ApprovalURL)

	found, err := f.orderSvc.FindByProviderIntent(ctx, "fakepay", "intent_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
}

func TestInitiate_ReplayReturnsLiveSession(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	f.adapter.session = &paymentdomain.CheckoutSession{
		Provider:    "fakepay",
		IntentID:    "intent_1",
		ApprovalURL: "https://pay.example/intent_1",
	}

	first, err := f.svc.Initiate(ctx, "user-1", order.ID, "fakepay")
	require.NoError(t, err)

	// A double click must not mint a second intent.
	f.adapter.session = &paymentdomain.CheckoutSession{
		Provider:    "fakepay",
		IntentID:    "intent_2",
		ApprovalURL: "https://pay.example/intent_2",
	}
	second, err := f.svc.Initiate(ctx, "user-1", order.ID, "fakepay")
	require.NoError(t, err)

	assert.Equal(t, 1, f.adapter.createCalls)
	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Equal(t, first.ApprovalURL, second.ApprovalURL)
}

func TestIngestWebhook_SettlesSupersededIntent(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	f.adapter.session = &paymentdomain.CheckoutSession{
		Provider:    "fakepay",
		IntentID:    "intent_1",
		ApprovalURL: "https://pay.example/intent_1",
	}
	_, err := f.svc.Initiate(ctx, "user-1", order.ID, "fakepay")
	require.NoError(t, err)

	// The buyer switches providers; the ledger row now points at the
	// second provider's intent.
	otherAdapter := &fakeAdapter{session: &paymentdomain.CheckoutSession{
		Provider:    "otherpay",
		IntentID:    "intent_2",
		ApprovalURL: "https://other.example/intent_2",
	}}
	require.NoError(t, f.registry.Register(&fakeFactory{name: "otherpay", adapter: otherAdapter}, paymentdomain.AdapterConfig{}))
	_, err = f.svc.Initiate(ctx, "user-1", order.ID, "otherpay")
	require.NoError(t, err)

	// Payment lands on the first checkout anyway.
	f.adapter.parseEvent = successEvent("intent_1", "evt_1")
	require.NoError(t, f.svc.IngestWebhook(ctx, "fakepay", []byte(`{}`), http.Header{}))

	got, _, err := f.orderSvc.Get(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)
}

func TestInitiate_GatewayDownLeavesOrderUntouched(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	f.adapter.createErr = paymentdomain.ErrGatewayUnavailable

	_, err := f.svc.Initiate(ctx, "user-1", order.ID, "fakepay")
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayUnavailable)

	got, _, err := f.orderSvc.Get(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, got.Status)
	assert.Empty(t, got.ProviderIntentID)
}

func TestInitiate_UnknownProvider(t *testing.T) {
	f := setupPaymentTest(t)
	order := f.createPendingOrder(t, "user-1")

	_, err := f.svc.Initiate(context.Background(), "user-1", order.ID, "nopay")
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)
}

func TestIngestWebhook_CompletesOrderOnce(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	require.NoError(t, f.orderSvc.AttachIntent(ctx, order.ID, "fakepay", "intent_1"))
	f.adapter.parseEvent = successEvent("intent_1", "evt_1")

	require.NoError(t, f.svc.IngestWebhook(ctx, "fakepay", []byte(`{}`), http.Header{}))
	// Redelivery of the same event id.
	require.NoError(t, f.svc.IngestWebhook(ctx, "fakepay", []byte(`{}`), http.Header{}))

	got, _, err := f.orderSvc.Get(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)

	entries, err := f.library.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	var eventCount int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(1) FROM payment_events`).Scan(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestIngestWebhook_FailureAfterSuccessIgnored(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	require.NoError(t, f.orderSvc.AttachIntent(ctx, order.ID, "fakepay", "intent_1"))

	f.adapter.parseEvent = successEvent("intent_1", "evt_1")
	require.NoError(t, f.svc.IngestWebhook(ctx, "fakepay", []byte(`{}`), http.Header{}))

	failure := successEvent("intent_1", "evt_2")
	failure.Type = paymentdomain.EventTypePaymentFailed
	failure.FailureReason = "capture_denied"
	f.adapter.parseEvent = failure
	require.NoError(t, f.svc.IngestWebhook(ctx, "fakepay", []byte(`{}`), http.Header{}))

	got, _, err := f.orderSvc.Get(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)
}

func TestIngestWebhook_BadSignature(t *testing.T) {
	f := setupPaymentTest(t)
	f.adapter.verifyErr = paymentdomain.ErrUntrustedEvent

	err := f.svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrUntrustedEvent)
}

func TestIngestWebhook_UnknownIntent(t *testing.T) {
	f := setupPaymentTest(t)
	f.adapter.parseEvent = successEvent("intent_missing", "evt_1")

	err := f.svc.IngestWebhook(context.Background(), "fakepay", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownIntent)
}

func TestHandleReturn_SettlesPendingOrder(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	require.NoError(t, f.orderSvc.AttachIntent(ctx, order.ID, "fakepay", "intent_1"))
	f.adapter.fetchEvent = successEvent("intent_1", "poll_intent_1")

	orderID, err := f.svc.HandleReturn(ctx, "fakepay", url.Values{"token": []string{"intent_1"}})
	require.NoError(t, err)
	assert.Equal(t, order.ID, orderID)

	got, _, err := f.orderSvc.Get(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)
}

func TestHandleReturn_UnsettledIntent(t *testing.T) {
	f := setupPaymentTest(t)
	ctx := context.Background()

	order := f.createPendingOrder(t, "user-1")
	require.NoError(t, f.orderSvc.AttachIntent(ctx, order.ID, "fakepay", "intent_1"))
	f.adapter.fetchErr = paymentdomain.ErrEventIgnored

	orderID, err := f.svc.HandleReturn(ctx, "fakepay", url.Values{"token": []string{"intent_1"}})
	require.NoError(t, err)
	assert.Equal(t, order.ID, orderID)

	got, _, err := f.orderSvc.Get(ctx, "user-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, got.Status)
}
