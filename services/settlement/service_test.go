package settlement

import (
	"context"
	"sync"
	"testing"

	"cashback-controlplane/pkg/config"
	"cashback-controlplane/pkg/errutil"
	"cashback-controlplane/services/audit"
	"cashback-controlplane/services/order"
	"cashback-controlplane/services/realtime"
	"cashback-controlplane/services/testutil"
	"cashback-controlplane/services/wallet"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var ops = audit.Actor{UserID: "ops-1", Roles: []string{"ops"}}

type fakeRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeRecorder) Record(_ context.Context, r audit.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, r.Action)
}

func (f *fakeRecorder) has(action string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a == action {
			return true
		}
	}
	return false
}

type env struct {
	svc     *Service
	orders  *order.Service
	wallets *wallet.Service
	audit   *fakeRecorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewTestDB(t, &order.Order{}, &order.Item{}, &order.Event{}, &wallet.Wallet{}, &wallet.Transaction{})
	node := testutil.NewNode(t)
	rec := &fakeRecorder{}
	hub := realtime.NewMemoryHub(nil)

	cfg := &config.Config{}
	cfg.Wallet.Currency = "INR"
	cfg.Wallet.MaxCASRetries = 3

	orders := order.NewService(order.ServiceParams{DB: db, Node: node, Hub: hub, Audit: rec})
	wallets := wallet.NewService(wallet.ServiceParams{DB: db, Node: node, Config: cfg})
	svc := NewService(ServiceParams{Orders: orders, Wallets: wallets, Hub: hub, Audit: rec})
	return &env{svc: svc, orders: orders, wallets: wallets, audit: rec}
}

func (e *env) submittedOrder(t *testing.T) *order.Order {
	t.Helper()
	ctx := context.Background()
	o, err := e.orders.Create(ctx, order.CreateParams{
		ShopperID:    "shopper-1",
		BrandID:      "brand-1",
		MediatorCode: "MED_X",
		AgencyCode:   "AG_1",
		DealID:       "deal-1",
		Items:        []order.ItemParams{{PricePaise: 49900, CommissionPaise: 7000}},
		Actor:        ops,
	})
	require.NoError(t, err)

	path := []order.Status{order.StatusCreated, order.StatusRedirected, order.StatusOrdered, order.StatusProofSubmitted}
	for i := 0; i+1 < len(path); i++ {
		_, err := e.orders.Transition(ctx, order.TransitionRequest{OrderID: o.ID, From: path[i], To: path[i+1], Actor: ops})
		require.NoError(t, err)
	}
	return o
}

func (e *env) fund(t *testing.T, owner string, amount int64) {
	t.Helper()
	_, err := e.wallets.Credit(context.Background(), wallet.Request{
		IdempotencyKey: "fund:" + owner,
		Type:           wallet.TypeReceipt,
		OwnerID:        owner,
		OwnerType:      wallet.OwnerBrand,
		AmountPaise:    amount,
	})
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, owner string) int64 {
	t.Helper()
	w, err := e.wallets.GetWallet(context.Background(), owner)
	require.NoError(t, err)
	return w.AvailablePaise
}

func TestVerifyAndSettle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.submittedOrder(t)
	e.fund(t, "brand-1", 10000)

	approved, err := e.svc.VerifyPurchase(ctx, o.ID, ops, Outcome{Verified: true, Confidence: 0.93})
	require.NoError(t, err)
	require.Equal(t, order.StatusApproved, approved.WorkflowStatus)
	require.NotNil(t, approved.VerifiedAt(order.StepPurchase))

	res, err := e.svc.SettleOrder(ctx, o.ID, ops)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, res.Order.WorkflowStatus)
	require.Equal(t, SettlementKey(o.ID), res.Debit.IdempotencyKey)
	require.Equal(t, wallet.CreditKey(SettlementKey(o.ID)), res.Credit.IdempotencyKey)

	require.Equal(t, int64(3000), e.balance(t, "brand-1"))
	require.Equal(t, int64(7000), e.balance(t, "shopper-1"))
	require.True(t, e.audit.has(audit.ActionOrderSettled))

	_, err = e.svc.SettleOrder(ctx, o.ID, ops)
	require.Equal(t, order.ReasonStateMismatch, errutil.ReasonOf(err))
	require.Equal(t, int64(7000), e.balance(t, "shopper-1"))

	full, err := e.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	last := full.Events[len(full.Events)-1].Metadata.Data()
	require.Equal(t, order.StatusCompleted, last.Transition.To)
	require.Len(t, last.Transition.TransactionIDs, 2)
}

func TestVerifyPurchase_Rejected(t *testing.T) {
	e := newEnv(t)
	o := e.submittedOrder(t)

	got, err := e.svc.VerifyPurchase(context.Background(), o.ID, ops, Outcome{Verified: false, Confidence: 0.2})
	require.NoError(t, err)
	require.Equal(t, order.StatusRejected, got.WorkflowStatus)
	require.Nil(t, got.VerifiedAt(order.StepPurchase))
}

func TestVerifyPurchase_ResumesFromUnderReview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.submittedOrder(t)

	_, err := e.orders.Transition(ctx, order.TransitionRequest{OrderID: o.ID, From: order.StatusProofSubmitted, To: order.StatusUnderReview, Actor: ops})
	require.NoError(t, err)
	_, err = e.orders.RecordVerification(ctx, o.ID, order.StepPurchase, ops)
	require.NoError(t, err)

	got, err := e.svc.VerifyPurchase(ctx, o.ID, ops, Outcome{Verified: true, Confidence: 1})
	require.NoError(t, err)
	require.Equal(t, order.StatusApproved, got.WorkflowStatus)
}

func TestSettleOrder_ResumesAfterFundingFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.submittedOrder(t)

	_, err := e.svc.VerifyPurchase(ctx, o.ID, ops, Outcome{Verified: true, Confidence: 0.9})
	require.NoError(t, err)

	_, err = e.svc.SettleOrder(ctx, o.ID, ops)
	require.Equal(t, wallet.ReasonWalletNotFound, errutil.ReasonOf(err))

	pending, err := e.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusRewardPending, pending.WorkflowStatus)

	e.fund(t, "brand-1", 5000)
	_, err = e.svc.SettleOrder(ctx, o.ID, ops)
	require.Equal(t, wallet.ReasonInsufficientFunds, errutil.ReasonOf(err))
	require.Equal(t, int64(5000), e.balance(t, "brand-1"))

	_, err = e.wallets.Credit(ctx, wallet.Request{
		IdempotencyKey: "top-up", Type: wallet.TypeReceipt, OwnerID: "brand-1", AmountPaise: 5000,
	})
	require.NoError(t, err)

	res, err := e.svc.SettleOrder(ctx, o.ID, ops)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, res.Order.WorkflowStatus)
	require.Equal(t, int64(3000), e.balance(t, "brand-1"))
}

func TestPayAgency_FromWallet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "brand-1", 10000)

	req := PayoutRequest{BrandID: "brand-1", AgencyID: "AG_1", Ref: "inv-7", AmountPaise: 4000, Actor: ops}
	res, err := e.svc.PayAgency(ctx, req)
	require.NoError(t, err)
	require.Equal(t, wallet.ModeWallet, res.Mode)
	require.Equal(t, PayoutKey("brand-1", "AG_1", "inv-7"), res.Debit.IdempotencyKey)

	again, err := e.svc.PayAgency(ctx, req)
	require.NoError(t, err)
	require.Equal(t, res.Debit.ID, again.Debit.ID)
	require.Equal(t, res.Credit.ID, again.Credit.ID)

	require.Equal(t, int64(6000), e.balance(t, "brand-1"))
	require.Equal(t, int64(4000), e.balance(t, "AG_1"))
	require.True(t, e.audit.has(audit.ActionAgencyPayout))
}

func TestPayAgency_FallsBackToManual(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "brand-1", 1000)

	req := PayoutRequest{BrandID: "brand-1", AgencyID: "AG_1", Ref: "inv-8", AmountPaise: 4000, Actor: ops}
	res, err := e.svc.PayAgency(ctx, req)
	require.NoError(t, err)
	require.Equal(t, wallet.ModeManual, res.Mode)
	require.Equal(t, wallet.StatusCompleted, res.Manual.Status)
	require.Equal(t, ManualKey(PayoutKey("brand-1", "AG_1", "inv-8")), res.Manual.IdempotencyKey)
	require.True(t, e.audit.has(audit.ActionAgencyPayoutManual))

	// funding the brand later does not turn the recorded payout into a debit
	_, err = e.wallets.Credit(ctx, wallet.Request{IdempotencyKey: "top-up", Type: wallet.TypeReceipt, OwnerID: "brand-1", AmountPaise: 9000})
	require.NoError(t, err)

	again, err := e.svc.PayAgency(ctx, req)
	require.NoError(t, err)
	require.Equal(t, wallet.ModeManual, again.Mode)
	require.Equal(t, res.Manual.ID, again.Manual.ID)
	require.Equal(t, int64(10000), e.balance(t, "brand-1"))
}

func TestPayAgency_MissingBrandWallet(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.PayAgency(context.Background(), PayoutRequest{BrandID: "brand-9", AgencyID: "AG_1", Ref: "r", AmountPaise: 100, Actor: ops})
	require.NoError(t, err)
	require.Equal(t, wallet.ModeManual, res.Mode)
}

func TestSuspendMediator(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.submittedOrder(t)

	ids, err := e.svc.SuspendMediator(ctx, "MED_X", "", ops)
	require.NoError(t, err)
	require.Equal(t, []int64{o.ID}, ids)
	require.True(t, e.audit.has(audit.ActionUpstreamSuspended))

	_, err = e.svc.VerifyPurchase(ctx, o.ID, ops, Outcome{Verified: true})
	require.Equal(t, order.ReasonFrozen, errutil.ReasonOf(err))

	_, err = e.svc.SuspendAgency(ctx, " ", "", ops)
	require.Error(t, err)
}
