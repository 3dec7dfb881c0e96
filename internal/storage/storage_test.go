package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/internal/testutil"
)

func TestStateStores(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.StateStore{
		"sqlite": func(t *testing.T) storage.StateStore { return testutil.NewTestStorage(t) },
		"memory": func(t *testing.T) storage.StateStore { return storage.NewMemoryStateStore() },
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			_, err := s.GetUserState(1)
			require.Error(t, err)

			require.NoError(t, s.SetUserState(1, "awaiting_amount"))
			state, err := s.GetUserState(1)
			require.NoError(t, err)
			assert.Equal(t, "awaiting_amount", state)

			require.NoError(t, s.SetUserState(1, "awaiting_receipt"))
			state, err = s.GetUserState(1)
			require.NoError(t, err)
			assert.Equal(t, "awaiting_receipt", state)

			require.NoError(t, s.DeleteUserState(1))
			_, err = s.GetUserState(1)
			require.Error(t, err)

			require.NoError(t, s.SetDepositState(1, &storage.DepositState{Amount: 50000, Timestamp: time.Now()}))
			dep, err := s.GetDepositState(1)
			require.NoError(t, err)
			assert.Equal(t, int64(50000), dep.Amount)

			require.NoError(t, s.SetBroadcastState(9, &storage.BroadcastState{Message: "hello", Timestamp: time.Now()}))
			bc, err := s.GetBroadcastState(9)
			require.NoError(t, err)
			assert.Equal(t, "hello", bc.Message)
		})
	}
}

func TestCleanupExpiredStates(t *testing.T) {
	stores := map[string]func(t *testing.T) storage.StateStore{
		"sqlite": func(t *testing.T) storage.StateStore { return testutil.NewTestStorage(t) },
		"memory": func(t *testing.T) storage.StateStore { return storage.NewMemoryStateStore() },
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			old := time.Now().Add(-48 * time.Hour)
			require.NoError(t, s.SetDepositState(1, &storage.DepositState{Amount: 1000, Timestamp: old}))
			require.NoError(t, s.SetDepositState(2, &storage.DepositState{Amount: 2000, Timestamp: time.Now()}))
			require.NoError(t, s.SetBroadcastState(3, &storage.BroadcastState{Message: "x", Timestamp: old}))

			require.NoError(t, s.CleanupExpiredStates(24*time.Hour))

			_, err := s.GetDepositState(1)
			assert.Error(t, err)
			_, err = s.GetDepositState(2)
			assert.NoError(t, err)
			_, err = s.GetBroadcastState(3)
			assert.Error(t, err)
		})
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStorage(t)

	require.NoError(t, s.UpsertUser(ctx, &storage.User{UserID: 42, Username: "ali", FirstName: "Ali"}))
	require.NoError(t, s.UpsertUser(ctx, &storage.User{UserID: 42, Username: "ali2", FirstName: "Ali"}))
	u, err := s.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "ali2", u.Username)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)

	panelID, err := s.AddPanel(ctx, &storage.Panel{Name: "de-1", PanelType: "3x-ui", URL: "http://panel", Username: "admin", Password: "pw", Active: true})
	require.NoError(t, err)

	planID, err := s.AddPlan(ctx, &storage.Plan{Name: "1 month", Price: 100000, TrafficGB: 50, DurationDays: 30, PanelID: panelID, InboundID: 3, Active: true})
	require.NoError(t, err)

	plans, err := s.ListActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, panelID, plans[0].PanelID)
	assert.Equal(t, 3, plans[0].InboundID)

	expires := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	order := &storage.Order{
		UserID:    42,
		PlanID:    planID,
		PanelID:   sql.NullInt64{Int64: panelID, Valid: true},
		Status:    storage.OrderPending,
		ExpiresAt: sql.NullTime{Time: expires, Valid: true},
	}
	orderID, err := s.CreateOrder(ctx, order)
	require.NoError(t, err)

	order.Status = storage.OrderActive
	order.MarzbanUser = "u42"
	order.XUIClientID = "abc"
	order.XUIInboundID = sql.NullInt64{Int64: 3, Valid: true}
	require.NoError(t, s.UpdateOrderProvisioning(ctx, order))

	got, err := s.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.XUIClientID)
	assert.Equal(t, storage.OrderActive, got.Status)
	require.True(t, got.ExpiresAt.Valid)
	assert.True(t, expires.Equal(got.ExpiresAt.Time))

	expiring, err := s.ListOrdersExpiringBetween(ctx, time.Now(), time.Now().Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)

	expiring, err = s.ListOrdersExpiringBetween(ctx, time.Now().Add(72*time.Hour), time.Now().Add(96*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expiring)

	_, err = s.GetOrder(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.SetOrderStatus(ctx, 999, storage.OrderFailed), apperrors.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStorage(t)

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO users (user_id, created_at) VALUES (?, ?)", 7, storage.FormatTime(time.Now()))
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.GetUser(ctx, 7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
