package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	cartdomain "github.com/soundcrate/soundcrate/internal/cart/domain"
	cartrepo "github.com/soundcrate/soundcrate/internal/cart/repository"
	cartservice "github.com/soundcrate/soundcrate/internal/cart/service"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	catalogrepo "github.com/soundcrate/soundcrate/internal/catalog/repository"
	catalogservice "github.com/soundcrate/soundcrate/internal/catalog/service"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	downloadrepo "github.com/soundcrate/soundcrate/internal/download/repository"
	downloadservice "github.com/soundcrate/soundcrate/internal/download/service"
	librarydomain "github.com/soundcrate/soundcrate/internal/library/domain"
	libraryrepo "github.com/soundcrate/soundcrate/internal/library/repository"
	libraryservice "github.com/soundcrate/soundcrate/internal/library/service"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	orderrepo "github.com/soundcrate/soundcrate/internal/order/repository"
	orderservice "github.com/soundcrate/soundcrate/internal/order/service"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	"github.com/soundcrate/soundcrate/internal/providers/pdf"
	"github.com/soundcrate/soundcrate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubPaymentService records what the webhook handler hands it.
type stubPaymentService struct {
	payloads [][]byte
}

func (s *stubPaymentService) Initiate(context.Context, string, snowflake.ID, string) (*paymentdomain.CheckoutSession, error) {
	return nil, paymentdomain.ErrProviderNotFound
}

func (s *stubPaymentService) IngestWebhook(_ context.Context, _ string, payload []byte, _ http.Header) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubPaymentService) HandleReturn(context.Context, string, url.Values) (snowflake.ID, error) {
	return 0, paymentdomain.ErrUnknownIntent
}

type serverFixture struct {
	srv      *Server
	payments *stubPaymentService
	db       *gorm.DB
	node     *snowflake.Node
}

func setupServerTest(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	stripLock := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
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
		&catalogdomain.Track{},
		&catalogdomain.Product{},
		&cartdomain.Item{},
		&orderdomain.Order{},
		&orderdomain.LineItem{},
		&librarydomain.Entry{},
		&downloaddomain.Job{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	blob, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	catalogSvc := catalogservice.NewService(catalogservice.Params{DB: db, Log: log, Repo: catalogrepo.Provide()})
	librarySvc := libraryservice.NewService(libraryservice.Params{DB: db, Log: log, Repo: libraryrepo.Provide()})
	cartSvc := cartservice.NewService(cartservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock,
		Repo:        cartrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
	})
	orderSvc := orderservice.NewService(orderservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock,
		Repo:        orderrepo.Provide(),
		CartRepo:    cartrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Library:     librarySvc,
	})
	downloadSvc := downloadservice.NewService(downloadservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock,
		Repo:        downloadrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Library:     librarySvc,
		Blob:        blob,
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())

	payments := &stubPaymentService{}
	srv := &Server{
		engine:      engine,
		cfg:         config.Config{},
		db:          db,
		genID:       node,
		catalogSvc:  catalogSvc,
		cartSvc:     cartSvc,
		orderSvc:    orderSvc,
		paymentSvc:  payments,
		downloadSvc: downloadSvc,
		librarySvc:  librarySvc,
		pdfSvc:      pdf.New(),
	}
	srv.registerAPIRoutes()

	return &serverFixture{srv: srv, payments: payments, db: db, node: node}
}

func (f *serverFixture) seedRelease(t *testing.T, model catalogdomain.PricingModel, slug string) (catalogdomain.Release, catalogdomain.Product) {
	t.Helper()

	release := catalogdomain.Release{
		ID:        f.node.Generate(),
		Artist:    "Night Bus",
		Title:     "Terminal",
		Slug:      slug,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.db.Create(&release).Error)

	product := catalogdomain.Product{
		ID:           f.node.Generate(),
		ReleaseID:    release.ID,
		PricingModel: model,
		CreatedAt:    time.Now(),
	}
	if model != catalogdomain.PricingFree {
		product.Currency = "USD"
	}
	if model == catalogdomain.PricingPaid {
		base := decimal.RequireFromString("9.99")
		product.BasePrice = &base
	}
	require.NoError(t, f.db.Create(&product).Error)
	return release, product
}

func (f *serverFixture) do(method, path, user string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUser, user)
	}

	rec := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(rec, req)
	return rec
}

func TestCart_RequiresIdentity(t *testing.T) {
	f := setupServerTest(t)

	rec := f.do(http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCart_AddAndGet(t *testing.T) {
	f := setupServerTest(t)
	_, product := f.seedRelease(t, catalogdomain.PricingPaid, "terminal")

	rec := f.do(http.MethodPost, "/api/cart/items", "user-1", gin.H{
		"product_id": product.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/cart", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items  []json.RawMessage `json:"items"`
		Totals []struct {
			Currency string `json:"currency"`
			Amount   string `json:"amount"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)
	require.Len(t, resp.Totals, 1)
	assert.Equal(t, "USD", resp.Totals[0].Currency)
}

func TestCart_UnknownProduct(t *testing.T) {
	f := setupServerTest(t)

	rec := f.do(http.MethodPost, "/api/cart/items", "user-1", gin.H{
		"product_id": f.node.Generate().String(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_EmptyCart(t *testing.T) {
	f := setupServerTest(t)

	rec := f.do(http.MethodPost, "/api/orders", "user-1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOrders_FreePurchaseCompletesAndHasReceipt(t *testing.T) {
	f := setupServerTest(t)
	release, product := f.seedRelease(t, catalogdomain.PricingFree, "terminal")

	rec := f.do(http.MethodPost, "/api/cart/items", "user-1", gin.H{
		"product_id": product.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/orders", "user-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, string(orderdomain.StatusCompleted), created.Order.Status)

	// The grant is visible in the library.
	rec = f.do(http.MethodGet, "/api/library", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), release.ID.String())

	rec = f.do(http.MethodGet, "/api/orders/"+created.Order.ID+"/receipt", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestOrders_ReceiptOnlyWhenCompleted(t *testing.T) {
	f := setupServerTest(t)
	_, product := f.seedRelease(t, catalogdomain.PricingPaid, "terminal")

	rec := f.do(http.MethodPost, "/api/cart/items", "user-1", gin.H{
		"product_id": product.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/orders", "user-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(http.MethodGet, "/api/orders/"+created.Order.ID+"/receipt", "user-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDownload_NotEntitled(t *testing.T) {
	f := setupServerTest(t)
	release, _ := f.seedRelease(t, catalogdomain.PricingPaid, "terminal")

	rec := f.do(http.MethodPost, "/api/releases/"+release.ID.String()+"/download", "user-1", gin.H{
		"format": "mp3",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownload_UnsupportedFormat(t *testing.T) {
	f := setupServerTest(t)
	release, _ := f.seedRelease(t, catalogdomain.PricingFree, "terminal")

	rec := f.do(http.MethodPost, "/api/releases/"+release.ID.String()+"/download", "user-1", gin.H{
		"format": "ogg",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReleases_PublicListing(t *testing.T) {
	f := setupServerTest(t)
	release, _ := f.seedRelease(t, catalogdomain.PricingFree, "terminal")

	rec := f.do(http.MethodGet, "/api/releases", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), release.Slug)

	rec = f.do(http.MethodGet, "/api/releases/"+release.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracks")
}

func TestPaymentWebhook_ForwardsBody(t *testing.T) {
	f := setupServerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	rec := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.payments.payloads, 1)
	assert.JSONEq(t, `{"id":"evt_1"}`, string(f.payments.payloads[0]))
}

func TestPaymentWebhook_RejectsOversizedBody(t *testing.T) {
	f := setupServerTest(t)

	body := bytes.Repeat([]byte("a"), maxWebhookBody+1)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/stripe", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.payments.payloads)
}

func TestReleases_BadID(t *testing.T) {
	f := setupServerTest(t)

	rec := f.do(http.MethodGet, "/api/releases/not-a-number", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
