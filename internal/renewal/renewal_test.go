package renewal_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/loyalty"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/renewal"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/internal/testutil"
	"vpn-shop-bot/internal/wallet"
)

type fakePanel struct {
	kind      panel.Kind
	createErr error
	renewErr  error
	creates   []panel.CreateRequest
	renews    []panel.RenewRequest
	expires   time.Time
}

func (f *fakePanel) Kind() panel.Kind { return f.kind }

func (f *fakePanel) CreateUser(ctx context.Context, req panel.CreateRequest) (*panel.Client, error) {
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &panel.Client{ID: "created-uuid", UUID: "created-uuid", Username: req.Username, InboundID: req.InboundID,
		SubscriptionURL: "https://sub/" + req.Username, ExpiresAt: f.expires}, nil
}

func (f *fakePanel) RenewUser(ctx context.Context, req panel.RenewRequest) (*panel.Client, error) {
	f.renews = append(f.renews, req)
	if f.renewErr != nil {
		return nil, f.renewErr
	}
	c := &panel.Client{ID: req.Username, Username: req.Username, ExpiresAt: f.expires}
	if f.kind == panel.KindXUI {
		c.ID, c.UUID = "renewed-uuid", "renewed-uuid"
	}
	return c, nil
}

func (f *fakePanel) RevokeUser(ctx context.Context, username string) error { return nil }

type fakeXUIPanel struct {
	fakePanel
	recreateErr error
	recreates   []int
}

func (f *fakeXUIPanel) RecreateOnInbound(ctx context.Context, inboundID int, username string, addGB, addDays int) (*panel.Client, error) {
	f.recreates = append(f.recreates, inboundID)
	if f.recreateErr != nil {
		return nil, f.recreateErr
	}
	return &panel.Client{ID: "recreated-uuid", UUID: "recreated-uuid", Username: username, InboundID: inboundID, ExpiresAt: f.expires}, nil
}

type fakePanels map[int64]panel.Panel

func (f fakePanels) Get(ctx context.Context, id int64) (panel.Panel, error) {
	p, ok := f[id]
	if !ok {
		return nil, errors.New("unknown panel")
	}
	return p, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	purchases []renewal.LogEntry
	renewals  []renewal.LogEntry
}

func (n *recordingNotifier) SendPurchaseLog(ctx context.Context, e renewal.LogEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.purchases = append(n.purchases, e)
}

func (n *recordingNotifier) SendRenewalLog(ctx context.Context, e renewal.LogEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.renewals = append(n.renewals, e)
}

type env struct {
	store    *storage.SQLiteStorage
	wallet   *wallet.Service
	loyalty  *loyalty.Service
	renewals *renewal.Service
	prov     *renewal.Provisioner
	notifier *recordingNotifier
	xui      *fakeXUIPanel
	marzban  *fakePanel
	xuiPlan  *storage.Plan
	mzPlan   *storage.Plan
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewTestStorage(t)
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	e := &env{
		store:    store,
		wallet:   wallet.NewService(store.DB(), logger.Nop()),
		loyalty:  loyalty.NewService(store.DB(), loyalty.Options{TomanPerPoint: 1000}, logger.Nop()),
		notifier: &recordingNotifier{},
		xui:      &fakeXUIPanel{fakePanel: fakePanel{kind: panel.KindXUI, expires: expires}},
		marzban:  &fakePanel{kind: panel.KindMarzban, expires: expires},
	}

	xuiPanel, err := store.AddPanel(ctx, &storage.Panel{Name: "x", PanelType: "3x-ui", URL: "http://x", Active: true})
	require.NoError(t, err)
	mzPanel, err := store.AddPanel(ctx, &storage.Panel{Name: "m", PanelType: "marzban", URL: "http://m", Active: true})
	require.NoError(t, err)

	e.xuiPlan = &storage.Plan{Name: "X 30d", Price: 100000, TrafficGB: 50, DurationDays: 30, PanelID: xuiPanel, InboundID: 4, Active: true}
	_, err = store.AddPlan(ctx, e.xuiPlan)
	require.NoError(t, err)
	e.mzPlan = &storage.Plan{Name: "M 30d", Price: 80000, TrafficGB: 40, DurationDays: 30, PanelID: mzPanel, Active: true}
	_, err = store.AddPlan(ctx, e.mzPlan)
	require.NoError(t, err)

	panels := fakePanels{xuiPanel: e.xui, mzPanel: e.marzban}
	e.renewals = renewal.NewService(store, panels, logger.Nop())
	e.prov = renewal.NewProvisioner(store, panels, e.renewals, e.wallet, e.loyalty, logger.Nop())
	e.prov.SetNotifier(e.notifier)
	return e
}

func (e *env) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := e.wallet.AddCredit(context.Background(), wallet.CreditRequest{UserID: userID, Amount: amount, Method: wallet.MethodCard, AutoApprove: true})
	require.NoError(t, err)
}

func (e *env) order(t *testing.T, plan *storage.Plan, username string, inbound int64) *storage.Order {
	t.Helper()
	o := &storage.Order{
		UserID:      42,
		PlanID:      plan.ID,
		PanelID:     sql.NullInt64{Int64: plan.PanelID, Valid: true},
		MarzbanUser: username,
		XUIClientID: "old-uuid",
		Status:      storage.OrderActive,
	}
	if inbound > 0 {
		o.XUIInboundID = sql.NullInt64{Int64: inbound, Valid: true}
	}
	_, err := e.store.CreateOrder(context.Background(), o)
	require.NoError(t, err)
	return o
}

func TestProcessRenewalInputErrors(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.renewals.ProcessRenewalForOrder(ctx, 999, e.xuiPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	o := e.order(t, e.xuiPlan, "u1", 4)
	_, err = e.renewals.ProcessRenewalForOrder(ctx, o.ID, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	noUser := e.order(t, e.xuiPlan, "", 4)
	_, err = e.renewals.ProcessRenewalForOrder(ctx, noUser.ID, e.xuiPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	noPanel := e.order(t, e.xuiPlan, "u2", 4)
	noPanel.PanelID = sql.NullInt64{}
	require.NoError(t, e.store.UpdateOrderProvisioning(ctx, noPanel))
	_, err = e.renewals.ProcessRenewalForOrder(ctx, noPanel.ID, e.xuiPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, e.xui.recreates)
	assert.Empty(t, e.xui.renews)
}

func TestProcessRenewalRecreatesOnInbound(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	o := e.order(t, e.xuiPlan, "u1", 4)

	res, err := e.renewals.ProcessRenewalForOrder(ctx, o.ID, e.xuiPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, renewal.StrategyRecreate, res.Strategy)
	assert.Equal(t, []int{4}, e.xui.recreates)
	assert.Empty(t, e.xui.renews)

	saved, err := e.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "recreated-uuid", saved.XUIClientID)
	require.True(t, saved.ExpiresAt.Valid)
	assert.True(t, e.xui.expires.Equal(saved.ExpiresAt.Time))
}

func TestProcessRenewalFallsBackToRenew(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// no inbound recorded
	o := e.order(t, e.xuiPlan, "u1", 0)
	res, err := e.renewals.ProcessRenewalForOrder(ctx, o.ID, e.xuiPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, renewal.StrategyRenew, res.Strategy)
	assert.Empty(t, e.xui.recreates)

	// recreate unavailable
	e.xui.recreateErr = panel.ErrRecreateUnsupported
	o = e.order(t, e.xuiPlan, "u2", 4)
	res, err = e.renewals.ProcessRenewalForOrder(ctx, o.ID, e.xuiPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, renewal.StrategyRenew, res.Strategy)
	require.Len(t, e.xui.renews, 2)
	assert.Equal(t, panel.RenewRequest{Username: "u2", AddGB: 50, AddDays: 30, InboundID: 4}, e.xui.renews[1])

	saved, err := e.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "renewed-uuid", saved.XUIClientID)
}

func TestProcessRenewalMarzban(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	o := e.order(t, e.mzPlan, "m1", 0)

	res, err := e.renewals.ProcessRenewalForOrder(ctx, o.ID, e.mzPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, renewal.StrategyRenew, res.Strategy)
	require.Len(t, e.marzban.renews, 1)

	saved, err := e.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-uuid", saved.XUIClientID)
	assert.True(t, saved.ExpiresAt.Valid)
}

func TestProcessRenewalPanelFailure(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.xui.recreateErr = errors.New("inbound 4 not found")
	o := e.order(t, e.xuiPlan, "u1", 4)

	_, err := e.renewals.ProcessRenewalForOrder(ctx, o.ID, e.xuiPlan.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPanelError)
	assert.Contains(t, apperrors.UserMessage(err), "inbound 4 not found")
	assert.Empty(t, e.xui.renews)

	saved, err := e.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-uuid", saved.XUIClientID)
}

func TestPurchase(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 150000)

	p, err := e.prov.Purchase(ctx, 42, e.xuiPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), p.Price)
	assert.Equal(t, 100, p.Points)
	assert.Equal(t, storage.OrderActive, p.Order.Status)

	saved, err := e.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "created-uuid", saved.XUIClientID)
	assert.Equal(t, int64(4), saved.XUIInboundID.Int64)
	assert.NotEmpty(t, saved.SubscriptionURL)

	require.Len(t, e.xui.creates, 1)
	assert.Equal(t, int64(42), e.xui.creates[0].TelegramID)
	assert.Equal(t, saved.MarzbanUser, e.xui.creates[0].Username)

	balance, err := e.wallet.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)

	points, err := e.loyalty.GetPoints(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 100, points.TotalPoints)

	require.Len(t, e.notifier.purchases, 1)
	assert.Equal(t, "X 30d", e.notifier.purchases[0].PlanName)
}

func TestPurchaseRefundsOnPanelFailure(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 100000)
	e.marzban.createErr = errors.New("connection refused")

	_, err := e.prov.Purchase(ctx, 42, e.mzPlan.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPanelError)

	w, err := e.wallet.GetWallet(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), w.Balance)
	assert.Equal(t, w.TotalDeposited-w.TotalSpent, w.Balance)

	orders, err := e.store.ListOrdersByUser(ctx, 42)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, storage.OrderFailed, orders[0].Status)
	assert.Empty(t, e.notifier.purchases)

	txs, err := e.wallet.GetTransactions(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, wallet.MethodRefund, txs[0].Method)
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 1000)

	_, err := e.prov.Purchase(ctx, 42, e.mzPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	assert.Empty(t, e.marzban.creates)

	orders, err := e.store.ListOrdersByUser(ctx, 42)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, storage.OrderFailed, orders[0].Status)
}

func TestPurchaseAppliesLoyaltyDiscount(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 200000)
	_, err := e.loyalty.AddPoints(ctx, 42, 500, loyalty.ActionAdmin, "")
	require.NoError(t, err)

	p, err := e.prov.Purchase(ctx, 42, e.xuiPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), p.Price)
}

func TestRenewRefundsOnFailure(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 100000)
	o := e.order(t, e.mzPlan, "m1", 0)
	e.marzban.renewErr = panel.ErrClientNotFound

	_, _, err := e.prov.Renew(ctx, 42, o.ID, e.mzPlan.ID)
	require.Error(t, err)

	balance, err := e.wallet.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance)
	assert.Empty(t, e.notifier.renewals)

	e.marzban.renewErr = nil
	res, price, err := e.prov.Renew(ctx, 42, o.ID, e.mzPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80000), price)
	assert.Equal(t, renewal.StrategyRenew, res.Strategy)
	require.Len(t, e.notifier.renewals, 1)

	_, _, err = e.prov.Renew(ctx, 7, o.ID, e.mzPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRenewRejectsInactivePlan(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 100000)
	o := e.order(t, e.mzPlan, "m1", 0)

	retired := &storage.Plan{Name: "old", Price: 0, TrafficGB: 500, DurationDays: 365, PanelID: e.mzPlan.PanelID, Active: false}
	_, err := e.store.AddPlan(ctx, retired)
	require.NoError(t, err)

	_, _, err = e.prov.Renew(ctx, 42, o.ID, retired.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, e.marzban.renews)

	balance, err := e.wallet.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance)
}

func TestRenewRejectsPlanFromAnotherPanel(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 200000)
	o := e.order(t, e.mzPlan, "m1", 0)

	_, _, err := e.prov.Renew(ctx, 42, o.ID, e.xuiPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, e.marzban.renews)
	assert.Empty(t, e.xui.renews)
	assert.Empty(t, e.xui.recreates)

	balance, err := e.wallet.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), balance)
}

type failingUpdateStore struct {
	*storage.SQLiteStorage
}

func (failingUpdateStore) UpdateOrderProvisioning(context.Context, *storage.Order) error {
	return errors.New("disk I/O error")
}

func TestPurchaseLogsUnrecordedProvisioning(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.fund(t, 42, 100000)

	var buf bytes.Buffer
	panels := fakePanels{e.mzPlan.PanelID: e.marzban}
	store := failingUpdateStore{e.store}
	prov := renewal.NewProvisioner(store, panels, renewal.NewService(store, panels, logger.Nop()),
		e.wallet, e.loyalty, logger.New(&buf))
	prov.SetNotifier(e.notifier)

	_, err := prov.Purchase(ctx, 42, e.mzPlan.ID)
	assert.ErrorIs(t, err, apperrors.ErrDatabaseError)
	require.Len(t, e.marzban.creates, 1)
	assert.Empty(t, e.notifier.purchases)

	out := buf.String()
	assert.Contains(t, out, "failed to persist provisioned client")
	assert.Contains(t, out, `"reference":"order:`)
	assert.Contains(t, out, e.marzban.creates[0].Username)
}
