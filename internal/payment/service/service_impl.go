package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	"github.com/soundcrate/soundcrate/internal/observability/metrics"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	"github.com/soundcrate/soundcrate/internal/payment/adapters"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     paymentdomain.Repository
	OrderSvc orderdomain.Service
	Registry *adapters.Registry
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     paymentdomain.Repository
	orderSvc orderdomain.Service
	registry *adapters.Registry
	metrics  *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		orderSvc: p.OrderSvc,
		registry: p.Registry,
		metrics:  p.Metrics,
	}
}

func (s *Service) Initiate(ctx context.Context, userID string, orderID snowflake.ID, provider string) (*paymentdomain.CheckoutSession, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, err := s.registry.Adapter(provider)
	if err != nil {
		return nil, err
	}

	order, items, err := s.orderSvc.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orderdomain.StatusPending || order.TotalAmount.IsZero() {
		return nil, orderdomain.ErrOrderNotPayable
	}

	// A double click or second tab replays the live session instead of
	// minting a competing intent the buyer could pay on and orphan.
	if existing, err := s.repo.FindLatestIntentByOrder(ctx, s.db, order.ID, provider); err != nil {
		return nil, err
	} else if existing != nil {
		return &paymentdomain.CheckoutSession{
			Provider:    existing.Provider,
			IntentID:    existing.ProviderIntentID,
			ApprovalURL: existing.ApprovalURL,
		}, nil
	}

	description := "Soundcrate order"
	if len(items) > 0 {
		description = fmt.Sprintf("%s: %s", items[0].Artist, items[0].Title)
		if len(items) > 1 {
			description = fmt.Sprintf("%s (+%d more)", description, len(items)-1)
		}
	}

	session, err := adapter.CreateIntent(ctx, paymentdomain.CreateIntentRequest{
		OrderID:        order.ID.String(),
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		Description:    description,
		IdempotencyKey: ulid.Make().String(),
		ReturnURL:      s.cfg.BaseURL + "/api/payments/return/" + provider,
		CancelURL:      s.cfg.BaseURL + "/api/orders/" + order.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertIntent(ctx, s.db, &paymentdomain.IntentRecord{
		ID:               s.genID.Generate(),
		OrderID:          order.ID,
		Provider:         session.Provider,
		ProviderIntentID: session.IntentID,
		ApprovalURL:      session.ApprovalURL,
		CreatedAt:        s.clock.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	if err := s.orderSvc.AttachIntent(ctx, order.ID, session.Provider, session.IntentID); err != nil {
		return nil, err
	}

	s.log.Info("payment initiated",
		zap.String("order_id", order.ID.String()),
		zap.String("provider", session.Provider),
		zap.String("intent_id", session.IntentID))
	return session, nil
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	adapter, err := s.registry.Adapter(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		if errors.Is(err, paymentdomain.ErrUntrustedEvent) {
			s.log.Warn("rejected webhook with bad signature", zap.String("provider", provider))
		}
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	return s.applyEvent(ctx, event)
}

func (s *Service) HandleReturn(ctx context.Context, provider string, query url.Values) (snowflake.ID, error) {
	adapter, err := s.registry.Adapter(provider)
	if err != nil {
		return 0, err
	}

	intentID, err := adapter.ReturnIntentID(query)
	if err != nil {
		return 0, err
	}
	order, err := s.findOrderForIntent(ctx, provider, intentID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			return 0, paymentdomain.ErrUnknownIntent
		}
		return 0, err
	}

	event, err := adapter.FetchIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			// Not settled yet; the webhook will finish the job.
			return order.ID, nil
		}
		return 0, err
	}
	if err := s.applyEvent(ctx, event); err != nil {
		return 0, err
	}
	return order.ID, nil
}

// findOrderForIntent resolves an intent against every intent minted
// for an order, not just the one currently on the ledger row; an
// earlier checkout session paid after a re-initiate still lands.
func (s *Service) findOrderForIntent(ctx context.Context, provider, intentID string) (*orderdomain.Order, error) {
	record, err := s.repo.FindIntent(ctx, s.db, provider, intentID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return s.orderSvc.Find(ctx, record.OrderID)
	}
	return s.orderSvc.FindByProviderIntent(ctx, provider, intentID)
}

// applyEvent is the single reconcile path for webhooks and polls.
func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if event == nil || event.ProviderEventID == "" || event.ProviderIntentID == "" {
		return paymentdomain.ErrInvalidEvent
	}

	order, err := s.findOrderForIntent(ctx, event.Provider, event.ProviderIntentID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			s.log.Warn("payment event for unknown intent",
				zap.String("provider", event.Provider),
				zap.String("intent_id", event.ProviderIntentID))
			return paymentdomain.ErrUnknownIntent
		}
		return err
	}

	now := s.clock.Now().UTC()
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		OrderID:         order.ID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			// Redelivery of a fully handled event.
			return nil
		}
		record = stored
	}

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		err = s.orderSvc.Complete(ctx, order.ID, event.Provider, event.ProviderIntentID)
	case paymentdomain.EventTypePaymentFailed:
		err = s.orderSvc.Fail(ctx, order.ID, event.FailureReason)
		if errors.Is(err, orderdomain.ErrInvalidTransition) {
			// A failure notice after settlement; the ledger wins.
			s.log.Warn("ignoring failure event for settled order",
				zap.String("order_id", order.ID.String()),
				zap.String("provider", event.Provider))
			err = nil
		}
	default:
		return paymentdomain.ErrInvalidEvent
	}
	if err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, now); err != nil {
		return err
	}
	s.metrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	return nil
}
