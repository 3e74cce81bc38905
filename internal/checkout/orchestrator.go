package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoniapp/sokoni/internal/catalog"
	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/logging"
	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/observability"
	"github.com/sokoniapp/sokoni/internal/payment"
	"github.com/sokoniapp/sokoni/internal/paycode"
	"github.com/sokoniapp/sokoni/internal/session"
)

// Session states. Transitions only move forward except for retry paths:
// a failed hosted redirect returns to StateSubmitPayment, and a rejected
// proof never leaves it.
const (
	StateDetails       = "details"
	StateSelectMethod  = "select_method"
	StateSubmitPayment = "submit_payment"
	StateHostedPending = "hosted_redirect_pending"
	StateSuccess       = "success"
)

type orderLedger interface {
	Create(ctx context.Context, order *models.Order) (bool, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type storeSource interface {
	GetByID(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	ListPaymentMethods(ctx context.Context, storeID uuid.UUID) ([]*models.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, methodID uuid.UUID) (*models.PaymentMethod, error)
}

// HostedRail and ManualRail are the slices of the payment package the flow
// consumes; *payment.HostedRail and *payment.ManualRail satisfy them.
type HostedRail interface {
	Initiate(ctx context.Context, order *models.Order, storeAccountID string) (string, error)
	VerifyAndSettle(ctx context.Context, reference string) (*models.Order, error)
}

type ManualRail interface {
	Submit(ctx context.Context, orderID uuid.UUID, proof models.ProofSubmission, family paycode.Family) (string, error)
}

// Orchestrator is the checkout state machine. It owns session lifecycle and
// order creation; settlement is delegated to the rails.
type Orchestrator struct {
	sessions   session.Store
	sessionTTL time.Duration
	resolver   catalog.Resolver
	registry   *catalog.WalletRegistry
	orders     orderLedger
	stores     storeSource
	hosted     HostedRail
	manual     ManualRail
	logger     *slog.Logger
}

type Config struct {
	Sessions   session.Store
	SessionTTL time.Duration
	Resolver   catalog.Resolver
	Registry   *catalog.WalletRegistry
	Orders     orderLedger
	Stores     storeSource

	// Hosted is nil when the platform has no gateway credentials; hosted
	// methods are then hidden and rejected.
	Hosted HostedRail
	Manual ManualRail

	Logger *slog.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("catalog resolver is required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("order ledger is required")
	}
	if cfg.Stores == nil {
		return nil, fmt.Errorf("store source is required")
	}
	if cfg.Manual == nil {
		return nil, fmt.Errorf("manual rail is required")
	}
	registry := cfg.Registry
	if registry == nil {
		registry = catalog.DefaultRegistry()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	o := &Orchestrator{
		sessions:   cfg.Sessions,
		sessionTTL: ttl,
		resolver:   cfg.Resolver,
		registry:   registry,
		orders:     cfg.Orders,
		stores:     cfg.Stores,
		manual:     cfg.Manual,
		logger:     cfg.Logger,
	}
	if cfg.Hosted != nil {
		o.hosted = cfg.Hosted
	}
	return o, nil
}

// View is the buyer-facing snapshot of a session.
type View struct {
	SessionID string          `json:"session_id"`
	State     string          `json:"state"`
	Title     string          `json:"title,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	OrderID   uuid.UUID       `json:"order_id,omitempty"`
}

// Start opens a checkout session for a listing reference. The price recorded
// on the session is a display snapshot; the ledger re-reads it when the
// order row is created.
func (o *Orchestrator) Start(ctx context.Context, ref models.Reference) (*View, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.start",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Start"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	listing, err := o.resolver.Resolve(ctx, ref)
	if errors.Is(err, catalog.ErrListingNotFound) {
		return nil, notFoundErr("listing not found")
	}
	if err != nil {
		return nil, internalErr("failed to resolve listing", err)
	}
	if !listing.Purchasable {
		return nil, &Error{Kind: KindNotPurchasable, Message: "this item is not available"}
	}

	sessionID := session.NewSessionID()
	data := &session.Data{
		State:     StateDetails,
		RefKind:   string(ref.Kind),
		RefID:     ref.ID,
		StoreID:   listing.StoreID,
		Amount:    listing.Price.String(),
		Currency:  listing.Currency,
		CreatedAt: time.Now().Unix(),
	}
	o.sessions.Set(ctx, sessionID, data, o.sessionTTL)

	meter.Count("checkout.session.started", 1, sentry.WithAttributes(
		attribute.String("ref_kind", data.RefKind),
	))
	logging.FromContext(ctx, o.logger).Info("checkout started",
		"session_id", sessionID, "ref_kind", data.RefKind, "store_id", listing.StoreID)

	return o.view(sessionID, data, listing.Title), nil
}

// BuyerDetails is the buyer's contact and delivery input.
type BuyerDetails struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	DeliveryAddress string `json:"delivery_address"`
}

// SubmitDetails records buyer contact details. Pure validation, no network.
func (o *Orchestrator) SubmitDetails(ctx context.Context, sessionID string, details BuyerDetails) (*View, error) {
	data, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data.State != StateDetails && data.State != StateSelectMethod {
		return nil, conflictErr("details can no longer be changed")
	}

	name := strings.TrimSpace(details.Name)
	if name == "" {
		return nil, validationErr("name", "name is required")
	}
	phone := paycode.ValidatePhone(details.Phone)
	if !phone.Valid {
		return nil, validationErr("phone", phone.Reason)
	}

	data.BuyerName = name
	data.BuyerPhone = phone.Normalized
	data.BuyerEmail = strings.TrimSpace(details.Email)
	data.DeliveryAddress = strings.TrimSpace(details.DeliveryAddress)
	data.State = StateSelectMethod
	o.sessions.Set(ctx, sessionID, data, o.sessionTTL)

	return o.view(sessionID, data, ""), nil
}

// MethodOption is a payment method as offered to the buyer.
type MethodOption struct {
	ID           uuid.UUID         `json:"id"`
	Kind         models.MethodKind `json:"kind"`
	Provider     string            `json:"provider"`
	Destination  string            `json:"destination,omitempty"`
	AccountLabel string            `json:"account_label,omitempty"`
}

// Methods lists the store's payment methods. Hosted methods are offered only
// when the platform gateway is configured and the store has a connected
// account.
func (o *Orchestrator) Methods(ctx context.Context, sessionID string) ([]MethodOption, error) {
	data, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	store, err := o.stores.GetByID(ctx, data.StoreID)
	if err != nil {
		return nil, internalErr("failed to load store", err)
	}
	methods, err := o.stores.ListPaymentMethods(ctx, data.StoreID)
	if err != nil {
		return nil, internalErr("failed to load payment methods", err)
	}

	options := make([]MethodOption, 0, len(methods))
	for _, method := range methods {
		if method.Kind == models.MethodHosted && !o.hostedAvailable(store) {
			continue
		}
		options = append(options, MethodOption{
			ID:           method.ID,
			Kind:         method.Kind,
			Provider:     method.Provider,
			Destination:  method.Destination,
			AccountLabel: method.AccountLabel,
		})
	}
	return options, nil
}

// SelectMethod pins a payment method to the session.
func (o *Orchestrator) SelectMethod(ctx context.Context, sessionID string, methodID uuid.UUID) (*View, error) {
	data, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data.State != StateSelectMethod && data.State != StateSubmitPayment {
		return nil, conflictErr("buyer details must be submitted first")
	}

	method, err := o.method(ctx, data, methodID)
	if err != nil {
		return nil, err
	}
	if method.Kind == models.MethodHosted {
		store, storeErr := o.stores.GetByID(ctx, data.StoreID)
		if storeErr != nil {
			return nil, internalErr("failed to load store", storeErr)
		}
		if !o.hostedAvailable(store) {
			return nil, conflictErr("online payment is not available for this store")
		}
	}

	data.MethodID = method.ID
	data.State = StateSubmitPayment
	o.sessions.Set(ctx, sessionID, data, o.sessionTTL)

	return o.view(sessionID, data, ""), nil
}

// Redirect is the outcome of starting a hosted payment.
type Redirect struct {
	URL     string    `json:"url"`
	OrderID uuid.UUID `json:"order_id"`
}

// BeginHostedRedirect creates the order and opens a gateway redirect. The
// order is created before the gateway call so a crash between the two leaves
// a pending order that the same session retries against via its attempt key.
// A gateway failure keeps the session in submit_payment.
func (o *Orchestrator) BeginHostedRedirect(ctx context.Context, sessionID string) (*Redirect, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.begin_hosted_redirect",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("BeginHostedRedirect"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("checkout.hosted.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	data, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data.State != StateSubmitPayment && data.State != StateHostedPending {
		return nil, conflictErr("a payment method must be selected first")
	}

	method, err := o.method(ctx, data, data.MethodID)
	if err != nil {
		return nil, err
	}
	if method.Kind != models.MethodHosted {
		return nil, conflictErr("selected method is not an online payment")
	}
	if o.hosted == nil {
		return nil, conflictErr("online payment is not available")
	}

	store, err := o.stores.GetByID(ctx, data.StoreID)
	if err != nil {
		return nil, internalErr("failed to load store", err)
	}

	order, err := o.ensureOrder(ctx, sessionID, data, method)
	if err != nil {
		recordFailure("order_create_failed")
		return nil, err
	}

	url, err := o.hosted.Initiate(ctx, order, store.GatewayAccountID)
	if err != nil {
		// The order stays pending; the buyer can retry or switch method.
		data.State = StateSubmitPayment
		o.sessions.Set(ctx, sessionID, data, o.sessionTTL)
		recordFailure("gateway_error")
		return nil, gatewayErr("payment could not be started, please try again", err)
	}

	data.State = StateHostedPending
	o.sessions.Set(ctx, sessionID, data, o.sessionTTL)

	meter.Count("checkout.hosted.redirected", 1)
	return &Redirect{URL: url, OrderID: order.ID}, nil
}

// ProofInput is the buyer's manual payment evidence.
type ProofInput struct {
	Code           string          `json:"code"`
	PayerPhone     string          `json:"payer_phone"`
	PayerName      string          `json:"payer_name"`
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
}

// ProofReceipt acknowledges an accepted proof submission.
type ProofReceipt struct {
	OrderID uuid.UUID `json:"order_id"`
	Warning string    `json:"warning,omitempty"`
}

// SubmitProof validates and attaches manual payment evidence. The order is
// created lazily on the first submission attempt; a rejected code leaves
// both order and session unchanged so the buyer can correct and resubmit.
// On success the session is destroyed; the order carries on alone.
func (o *Orchestrator) SubmitProof(ctx context.Context, sessionID string, input ProofInput) (*ProofReceipt, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.submit_proof",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("SubmitProof"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordRejection := func(reason string) {
		meter.Count("checkout.proof.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	data, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data.State != StateSubmitPayment {
		return nil, conflictErr("a payment method must be selected first")
	}

	method, err := o.method(ctx, data, data.MethodID)
	if err != nil {
		return nil, err
	}
	if method.Kind != models.MethodManual {
		return nil, conflictErr("selected method does not take a payment code")
	}

	// Gate on the code before creating anything: a typo'd code must have no
	// side effects.
	family := o.registry.FamilyFor(method.WalletFamily)
	if result := paycode.ValidateCode(input.Code, family); !result.Valid {
		recordRejection("invalid_code")
		return nil, validationErr("code", result.Reason)
	}

	order, err := o.ensureOrder(ctx, sessionID, data, method)
	if err != nil {
		recordRejection("order_create_failed")
		return nil, err
	}

	warning, err := o.manual.Submit(ctx, order.ID, models.ProofSubmission{
		Code:           input.Code,
		PayerPhone:     input.PayerPhone,
		PayerName:      input.PayerName,
		DeclaredAmount: input.DeclaredAmount,
		MethodTag:      method.Provider,
	}, family)
	if err != nil {
		var proofErr *payment.ProofError
		if errors.As(err, &proofErr) {
			recordRejection("invalid_" + proofErr.Field)
			return nil, validationErr(proofErr.Field, proofErr.Reason)
		}
		recordRejection("persistence_error")
		return nil, internalErr("failed to record payment proof", err)
	}

	o.sessions.Delete(ctx, sessionID)
	meter.Count("checkout.proof.accepted", 1)
	logging.FromContext(ctx, o.logger).Info("checkout proof accepted",
		"session_id", sessionID, "order_id", order.ID)

	return &ProofReceipt{OrderID: order.ID, Warning: warning}, nil
}

// CompleteRedirect handles the buyer's return from the gateway, verifying
// the reference and settling the order. Idempotent; re-entry with the same
// reference converges on the same outcome.
func (o *Orchestrator) CompleteRedirect(ctx context.Context, reference string) (*models.Order, error) {
	if o.hosted == nil {
		return nil, conflictErr("online payment is not available")
	}

	span := sentry.StartSpan(
		ctx,
		"service.checkout.complete_redirect",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("CompleteRedirect"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	order, err := o.hosted.VerifyAndSettle(ctx, reference)
	if errors.Is(err, db.ErrOrderNotFound) {
		meter.Count("checkout.redirect.unknown_reference", 1)
		return nil, notFoundErr("unknown payment reference")
	}
	if err != nil {
		return nil, gatewayErr("payment could not be verified yet", err)
	}

	meter.Count("checkout.redirect.settled", 1, sentry.WithAttributes(
		attribute.String("status", string(order.Status)),
	))
	return order, nil
}

// Cancel abandons a session. An order already created stays in the ledger;
// a pending order with no gateway reference is inert.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	if _, err := o.load(ctx, sessionID); err != nil {
		return err
	}
	o.sessions.Delete(ctx, sessionID)
	return nil
}

// Status returns the session's current view.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*View, error) {
	data, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return o.view(sessionID, data, ""), nil
}

// ensureOrder creates the session's order exactly once. The attempt key is
// minted on first use and persisted on the session, so a retry after a
// crashed or failed attempt dedups against the same ledger row.
func (o *Orchestrator) ensureOrder(ctx context.Context, sessionID string, data *session.Data, method *models.PaymentMethod) (*models.Order, error) {
	if data.OrderID != uuid.Nil {
		order, err := o.orders.GetByID(ctx, data.OrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, db.ErrOrderNotFound) {
			return nil, internalErr("failed to load order", err)
		}
	}

	if data.AttemptKey == "" {
		data.AttemptKey = uuid.NewString()
		o.sessions.Set(ctx, sessionID, data, o.sessionTTL)
	}

	refID := data.RefID
	order := &models.Order{
		BuyerName:       data.BuyerName,
		BuyerPhone:      data.BuyerPhone,
		BuyerEmail:      data.BuyerEmail,
		DeliveryAddress: data.DeliveryAddress,
		Reference: models.Reference{
			Kind: models.ReferenceKind(data.RefKind),
			ID:   refID,
		},
		PaymentMethod:  method.Provider,
		IdempotencyKey: data.AttemptKey,
	}

	created, err := o.orders.Create(ctx, order)
	if errors.Is(err, db.ErrNotPurchasable) {
		return nil, &Error{Kind: KindNotPurchasable, Message: "this item is no longer available"}
	}
	if err != nil {
		return nil, internalErr("failed to create order", err)
	}

	data.OrderID = order.ID
	o.sessions.Set(ctx, sessionID, data, o.sessionTTL)

	logging.FromContext(ctx, o.logger).Info("order created",
		"session_id", sessionID, "order_id", order.ID, "deduplicated", !created)
	return order, nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*session.Data, error) {
	data, ok := o.sessions.Get(ctx, sessionID)
	if !ok {
		return nil, notFoundErr("checkout session not found or expired")
	}
	return data, nil
}

func (o *Orchestrator) method(ctx context.Context, data *session.Data, methodID uuid.UUID) (*models.PaymentMethod, error) {
	if methodID == uuid.Nil {
		return nil, validationErr("method_id", "payment method is required")
	}
	method, err := o.stores.GetPaymentMethod(ctx, methodID)
	if err != nil {
		return nil, notFoundErr("payment method not found")
	}
	if method.StoreID != data.StoreID {
		return nil, notFoundErr("payment method not found")
	}
	return method, nil
}

func (o *Orchestrator) hostedAvailable(store *models.Store) bool {
	return o.hosted != nil && store.AcceptsHostedPayments()
}

func (o *Orchestrator) view(sessionID string, data *session.Data, title string) *View {
	amount, err := decimal.NewFromString(data.Amount)
	if err != nil {
		amount = decimal.Zero
	}
	return &View{
		SessionID: sessionID,
		State:     data.State,
		Title:     title,
		Amount:    amount,
		Currency:  data.Currency,
		OrderID:   data.OrderID,
	}
}
