package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoniapp/sokoni/internal/catalog"
	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/payment"
	"github.com/sokoniapp/sokoni/internal/paycode"
	"github.com/sokoniapp/sokoni/internal/session"
)

// fakeWorld is an in-memory backend for the whole flow: catalog, ledger,
// stores and both rails.
type fakeWorld struct {
	mu sync.Mutex

	store   *models.Store
	product *models.Product
	methods map[uuid.UUID]*models.PaymentMethod

	orders   map[uuid.UUID]*models.Order
	byKey    map[string]uuid.UUID
	createdN int
}

func newFakeWorld() *fakeWorld {
	storeID := uuid.New()
	return &fakeWorld{
		store: &models.Store{
			ID:               storeID,
			Name:             "Maridadi Crafts",
			Currency:         "KES",
			GatewayAccountID: "acct_test",
		},
		product: &models.Product{
			ID:        uuid.New(),
			StoreID:   storeID,
			Name:      "Kiondo basket",
			Price:     decimal.RequireFromString("1500.00"),
			Currency:  "KES",
			Published: true,
		},
		methods: make(map[uuid.UUID]*models.PaymentMethod),
		orders:  make(map[uuid.UUID]*models.Order),
		byKey:   make(map[string]uuid.UUID),
	}
}

func (w *fakeWorld) addMethod(kind models.MethodKind, provider, family string) *models.PaymentMethod {
	method := &models.PaymentMethod{
		ID:           uuid.New(),
		StoreID:      w.store.ID,
		Kind:         kind,
		Provider:     provider,
		WalletFamily: family,
		Destination:  "247247",
	}
	w.methods[method.ID] = method
	return method
}

// catalog.Resolver

func (w *fakeWorld) Resolve(_ context.Context, ref models.Reference) (*catalog.Listing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ref.Kind != models.RefProduct || ref.ID != w.product.ID {
		return nil, catalog.ErrListingNotFound
	}
	return &catalog.Listing{
		Reference:   ref,
		StoreID:     w.product.StoreID,
		Title:       w.product.Name,
		Price:       w.product.Price,
		Currency:    w.product.Currency,
		Purchasable: w.product.Purchasable(),
	}, nil
}

// storeSource

func (w *fakeWorld) GetByID(_ context.Context, storeID uuid.UUID) (*models.Store, error) {
	if storeID != w.store.ID {
		return nil, db.ErrStoreNotFound
	}
	copied := *w.store
	return &copied, nil
}

func (w *fakeWorld) ListPaymentMethods(_ context.Context, storeID uuid.UUID) ([]*models.PaymentMethod, error) {
	var out []*models.PaymentMethod
	for _, m := range w.methods {
		if m.StoreID == storeID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (w *fakeWorld) GetPaymentMethod(_ context.Context, methodID uuid.UUID) (*models.PaymentMethod, error) {
	method, ok := w.methods[methodID]
	if !ok {
		return nil, errors.New("no rows")
	}
	return method, nil
}

// orderLedger

func (w *fakeWorld) Create(_ context.Context, order *models.Order) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if order.IdempotencyKey == "" {
		return false, errors.New("idempotency key required")
	}
	if existingID, ok := w.byKey[order.IdempotencyKey]; ok {
		*order = *w.orders[existingID]
		return false, nil
	}
	if !w.product.Purchasable() {
		return false, db.ErrNotPurchasable
	}
	order.ID = uuid.New()
	order.StoreID = w.product.StoreID
	order.Amount = w.product.Price
	order.Currency = w.product.Currency
	order.Status = models.StatusPending
	order.OrderNumber = len(w.orders) + 1
	order.CreatedAt = time.Now()
	copied := *order
	w.orders[order.ID] = &copied
	w.byKey[order.IdempotencyKey] = order.ID
	w.createdN++
	return true, nil
}

func (w *fakeWorld) GetOrder(orderID uuid.UUID) *models.Order {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orders[orderID]
}

func (w *fakeWorld) getByID(orderID uuid.UUID) (*models.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	order, ok := w.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

// ledgerFacade adapts fakeWorld to the ledger interfaces without the method
// set of storeSource colliding on GetByID.
type ledgerFacade struct{ w *fakeWorld }

func (l ledgerFacade) Create(ctx context.Context, order *models.Order) (bool, error) {
	return l.w.Create(ctx, order)
}

func (l ledgerFacade) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	return l.w.getByID(orderID)
}

func (l ledgerFacade) GetByGatewayReference(_ context.Context, reference string) (*models.Order, error) {
	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	for _, order := range l.w.orders {
		if order.GatewayReference == reference && reference != "" {
			copied := *order
			return &copied, nil
		}
	}
	return nil, db.ErrOrderNotFound
}

func (l ledgerFacade) AttachProof(_ context.Context, orderID uuid.UUID, proof models.ProofSubmission) error {
	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	order, ok := l.w.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.Status != models.StatusPending {
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusUnderReview
	order.ProofCode = proof.Code
	order.PayerPhone = proof.PayerPhone
	order.DeclaredAmount = proof.DeclaredAmount
	return nil
}

func (l ledgerFacade) MarkPendingVerification(_ context.Context, orderID uuid.UUID, reference string) error {
	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	order, ok := l.w.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	switch order.Status {
	case models.StatusPending, models.StatusFailed, models.StatusPendingVerification:
	default:
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusPendingVerification
	order.GatewayReference = reference
	return nil
}

func (l ledgerFacade) MarkCompleted(_ context.Context, orderID uuid.UUID) error {
	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	order, ok := l.w.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	switch order.Status {
	case models.StatusPending, models.StatusPendingVerification, models.StatusUnderReview, models.StatusCompleted:
	default:
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusCompleted
	return nil
}

func (l ledgerFacade) MarkFailed(_ context.Context, orderID uuid.UUID, reason string) error {
	l.w.mu.Lock()
	defer l.w.mu.Unlock()
	order, ok := l.w.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	switch order.Status {
	case models.StatusPending, models.StatusPendingVerification, models.StatusFailed:
	default:
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusFailed
	order.RejectionReason = reason
	return nil
}

type testEnv struct {
	world   *fakeWorld
	gateway *fakeHostedGateway
	orch    *Orchestrator
	manual  *models.PaymentMethod
	hosted  *models.PaymentMethod
}

type gwStatus struct {
	confirmed bool
	pending   bool
	raw       string
}

// fakeHostedGateway scripts per-reference gateway outcomes.
type fakeHostedGateway struct {
	mu       sync.Mutex
	nextRef  int
	initErr  error
	statuses map[string]gwStatus
}

func newTestEnv(t *testing.T, withHosted bool) *testEnv {
	t.Helper()

	world := newFakeWorld()
	manualMethod := world.addMethod(models.MethodManual, "M-PESA Paybill", "mpesa")
	hostedMethod := world.addMethod(models.MethodHosted, "Card / Online", "")

	ledger := ledgerFacade{w: world}
	manualRail, err := payment.NewManualRail(ledger, nil)
	if err != nil {
		t.Fatalf("NewManualRail() error = %v", err)
	}

	cfg := Config{
		Sessions:   session.NewMemoryStore(),
		SessionTTL: time.Hour,
		Resolver:   world,
		Registry:   catalog.DefaultRegistry(),
		Orders:     ledger,
		Stores:     world,
		Manual:     manualRail,
	}

	env := &testEnv{world: world, manual: manualMethod, hosted: hostedMethod}
	if withHosted {
		env.gateway = &fakeHostedGateway{statuses: make(map[string]gwStatus)}
		cfg.Hosted = &fakeHostedRail{gw: env.gateway, ledger: ledger}
	}

	orch, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.orch = orch
	return env
}

// fakeHostedRail mirrors the hosted rail's contract against the fake ledger.
type fakeHostedRail struct {
	gw     *fakeHostedGateway
	ledger ledgerFacade
}

func (r *fakeHostedRail) Initiate(ctx context.Context, order *models.Order, _ string) (string, error) {
	r.gw.mu.Lock()
	if r.gw.initErr != nil {
		err := r.gw.initErr
		r.gw.mu.Unlock()
		return "", err
	}
	r.gw.nextRef++
	ref := fmt.Sprintf("cs_test_%d", r.gw.nextRef)
	r.gw.statuses[ref] = gwStatus{pending: true, raw: "unpaid"}
	r.gw.mu.Unlock()

	if err := r.ledger.MarkPendingVerification(ctx, order.ID, ref); err != nil {
		return "", err
	}
	order.Status = models.StatusPendingVerification
	order.GatewayReference = ref
	return "https://pay.example.com/" + ref, nil
}

func (r *fakeHostedRail) VerifyAndSettle(ctx context.Context, reference string) (*models.Order, error) {
	order, err := r.ledger.GetByGatewayReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return order, nil
	}

	r.gw.mu.Lock()
	status, ok := r.gw.statuses[reference]
	r.gw.mu.Unlock()
	if !ok {
		return nil, db.ErrOrderNotFound
	}

	switch {
	case status.confirmed:
		if err := r.ledger.MarkCompleted(ctx, order.ID); err != nil {
			return nil, err
		}
		order.Status = models.StatusCompleted
	case status.pending:
	default:
		if err := r.ledger.MarkFailed(ctx, order.ID, "gateway status: "+status.raw); err != nil && !errors.Is(err, db.ErrInvalidStatusTransition) {
			return nil, err
		}
		order.Status = models.StatusFailed
	}
	return order, nil
}

func (g *fakeHostedGateway) settle(reference string, confirmed bool, raw string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[reference] = gwStatus{confirmed: confirmed, raw: raw}
}

func startToSubmitPayment(t *testing.T, env *testEnv, methodID uuid.UUID) string {
	t.Helper()
	ctx := context.Background()

	view, err := env.orch.Start(ctx, models.Reference{Kind: models.RefProduct, ID: env.world.product.ID})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if view.State != StateDetails {
		t.Fatalf("state after Start = %q, want %q", view.State, StateDetails)
	}

	view, err = env.orch.SubmitDetails(ctx, view.SessionID, BuyerDetails{
		Name:  "Wanjiku Kamau",
		Phone: "+254 712 345 678",
		Email: "wanjiku@example.com",
	})
	if err != nil {
		t.Fatalf("SubmitDetails() error = %v", err)
	}
	if view.State != StateSelectMethod {
		t.Fatalf("state after SubmitDetails = %q, want %q", view.State, StateSelectMethod)
	}

	view, err = env.orch.SelectMethod(ctx, view.SessionID, methodID)
	if err != nil {
		t.Fatalf("SelectMethod() error = %v", err)
	}
	if view.State != StateSubmitPayment {
		t.Fatalf("state after SelectMethod = %q, want %q", view.State, StateSubmitPayment)
	}
	return view.SessionID
}

func TestManualCheckoutEndToEnd(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	ctx := context.Background()
	sid := startToSubmitPayment(t, env, env.manual.ID)

	receipt, err := env.orch.SubmitProof(ctx, sid, ProofInput{
		Code:           "SJK7Y6H4TQ",
		PayerPhone:     "+254712345678",
		DeclaredAmount: decimal.RequireFromString("1500.00"),
	})
	if err != nil {
		t.Fatalf("SubmitProof() error = %v", err)
	}

	order := env.world.GetOrder(receipt.OrderID)
	if order == nil {
		t.Fatal("order not found in ledger")
	}
	if order.Status != models.StatusUnderReview {
		t.Errorf("order status = %q, want %q", order.Status, models.StatusUnderReview)
	}
	if order.ProofCode != "SJK7Y6H4TQ" {
		t.Errorf("proof code = %q, want SJK7Y6H4TQ", order.ProofCode)
	}

	// Session is destroyed once the proof is accepted.
	if _, err := env.orch.Status(ctx, sid); err == nil {
		t.Error("Status() after accepted proof should fail, session must be gone")
	}
}

func TestManualCheckoutInvalidCodeCreatesNoOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	ctx := context.Background()
	sid := startToSubmitPayment(t, env, env.manual.ID)

	_, err := env.orch.SubmitProof(ctx, sid, ProofInput{Code: "AB"})
	var flowErr *Error
	if !errors.As(err, &flowErr) || flowErr.Kind != KindValidation {
		t.Fatalf("SubmitProof() error = %v, want validation error", err)
	}
	if flowErr.Message != paycode.ReasonTooShort {
		t.Errorf("message = %q, want %q", flowErr.Message, paycode.ReasonTooShort)
	}
	if env.world.createdN != 0 {
		t.Errorf("orders created = %d, want 0 after rejected code", env.world.createdN)
	}

	// The session survives for a corrected resubmission.
	receipt, err := env.orch.SubmitProof(ctx, sid, ProofInput{Code: "SJK7Y6H4TQ"})
	if err != nil {
		t.Fatalf("SubmitProof() retry error = %v", err)
	}
	if env.world.createdN != 1 {
		t.Errorf("orders created = %d, want 1", env.world.createdN)
	}
	if receipt.OrderID == uuid.Nil {
		t.Error("receipt has no order ID")
	}
}

func TestHostedCheckoutEndToEnd(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	ctx := context.Background()
	sid := startToSubmitPayment(t, env, env.hosted.ID)

	redirect, err := env.orch.BeginHostedRedirect(ctx, sid)
	if err != nil {
		t.Fatalf("BeginHostedRedirect() error = %v", err)
	}
	if redirect.URL == "" {
		t.Error("redirect URL is empty")
	}

	order := env.world.GetOrder(redirect.OrderID)
	if order.Status != models.StatusPendingVerification {
		t.Fatalf("order status = %q, want %q", order.Status, models.StatusPendingVerification)
	}

	env.gateway.settle(order.GatewayReference, true, "paid")
	settled, err := env.orch.CompleteRedirect(ctx, order.GatewayReference)
	if err != nil {
		t.Fatalf("CompleteRedirect() error = %v", err)
	}
	if settled.Status != models.StatusCompleted {
		t.Errorf("settled status = %q, want %q", settled.Status, models.StatusCompleted)
	}

	// Re-entry converges on the same outcome.
	again, err := env.orch.CompleteRedirect(ctx, order.GatewayReference)
	if err != nil {
		t.Fatalf("CompleteRedirect() re-entry error = %v", err)
	}
	if again.Status != models.StatusCompleted {
		t.Errorf("re-entry status = %q, want %q", again.Status, models.StatusCompleted)
	}
}

func TestHostedCheckoutGatewayFailureIsRetryable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	ctx := context.Background()
	sid := startToSubmitPayment(t, env, env.hosted.ID)

	env.gateway.mu.Lock()
	env.gateway.initErr = errors.New("gateway down")
	env.gateway.mu.Unlock()

	_, err := env.orch.BeginHostedRedirect(ctx, sid)
	var flowErr *Error
	if !errors.As(err, &flowErr) || flowErr.Kind != KindGateway {
		t.Fatalf("BeginHostedRedirect() error = %v, want gateway error", err)
	}

	// One order exists, still pending, and the retry reuses it.
	if env.world.createdN != 1 {
		t.Fatalf("orders created = %d, want 1", env.world.createdN)
	}

	env.gateway.mu.Lock()
	env.gateway.initErr = nil
	env.gateway.mu.Unlock()

	redirect, err := env.orch.BeginHostedRedirect(ctx, sid)
	if err != nil {
		t.Fatalf("BeginHostedRedirect() retry error = %v", err)
	}
	if env.world.createdN != 1 {
		t.Errorf("orders created = %d after retry, want 1 (idempotent)", env.world.createdN)
	}
	if env.world.GetOrder(redirect.OrderID).Status != models.StatusPendingVerification {
		t.Errorf("order not parked for verification after retry")
	}
}

func TestHostedMethodHiddenWithoutGateway(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	ctx := context.Background()

	view, err := env.orch.Start(ctx, models.Reference{Kind: models.RefProduct, ID: env.world.product.ID})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := env.orch.SubmitDetails(ctx, view.SessionID, BuyerDetails{Name: "A", Phone: "0712345678"}); err != nil {
		t.Fatalf("SubmitDetails() error = %v", err)
	}

	options, err := env.orch.Methods(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Methods() error = %v", err)
	}
	for _, option := range options {
		if option.Kind == models.MethodHosted {
			t.Errorf("hosted method %q offered without a configured gateway", option.Provider)
		}
	}

	_, err = env.orch.SelectMethod(ctx, view.SessionID, env.hosted.ID)
	var flowErr *Error
	if !errors.As(err, &flowErr) || flowErr.Kind != KindConflict {
		t.Fatalf("SelectMethod(hosted) error = %v, want conflict", err)
	}
}

func TestStartRejectsUnpurchasableListing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	env.world.product.Published = false

	_, err := env.orch.Start(context.Background(), models.Reference{Kind: models.RefProduct, ID: env.world.product.ID})
	var flowErr *Error
	if !errors.As(err, &flowErr) || flowErr.Kind != KindNotPurchasable {
		t.Fatalf("Start() error = %v, want not_purchasable", err)
	}
}

func TestSubmitDetailsValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	ctx := context.Background()
	view, err := env.orch.Start(ctx, models.Reference{Kind: models.RefProduct, ID: env.world.product.ID})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name      string
		details   BuyerDetails
		wantField string
	}{
		{"missing name", BuyerDetails{Phone: "0712345678"}, "name"},
		{"bad phone", BuyerDetails{Name: "Wanjiku", Phone: "123"}, "phone"},
		{"empty phone", BuyerDetails{Name: "Wanjiku"}, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orch.SubmitDetails(ctx, view.SessionID, tt.details)
			var flowErr *Error
			if !errors.As(err, &flowErr) || flowErr.Kind != KindValidation {
				t.Fatalf("SubmitDetails() error = %v, want validation error", err)
			}
			if flowErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", flowErr.Field, tt.wantField)
			}
		})
	}
}

func TestOperationsOutOfOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	ctx := context.Background()

	view, err := env.orch.Start(ctx, models.Reference{Kind: models.RefProduct, ID: env.world.product.ID})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Selecting a method before details is a conflict.
	_, err = env.orch.SelectMethod(ctx, view.SessionID, env.manual.ID)
	var flowErr *Error
	if !errors.As(err, &flowErr) || flowErr.Kind != KindConflict {
		t.Fatalf("SelectMethod() before details error = %v, want conflict", err)
	}

	// Proof against a session with no method selected is a conflict.
	_, err = env.orch.SubmitProof(ctx, view.SessionID, ProofInput{Code: "SJK7Y6H4TQ"})
	if !errors.As(err, &flowErr) || flowErr.Kind != KindConflict {
		t.Fatalf("SubmitProof() before method error = %v, want conflict", err)
	}
}

func TestCancelDestroysSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	ctx := context.Background()
	sid := startToSubmitPayment(t, env, env.manual.ID)

	if err := env.orch.Cancel(ctx, sid); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := env.orch.Status(ctx, sid); err == nil {
		t.Error("Status() after Cancel should fail")
	}

	var flowErr *Error
	err := env.orch.Cancel(ctx, sid)
	if !errors.As(err, &flowErr) || flowErr.Kind != KindNotFound {
		t.Errorf("second Cancel() error = %v, want not_found", err)
	}
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)

	_, err := env.orch.Status(context.Background(), "nope")
	var flowErr *Error
	if !errors.As(err, &flowErr) || flowErr.Kind != KindNotFound {
		t.Fatalf("Status() error = %v, want not_found", err)
	}
}
