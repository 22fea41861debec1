package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"iapgate/core/receipt"
)

func TestInsertIfAbsentKeepsFirstRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, created, err := store.InsertIfAbsent(ctx, &Receipt{Store: receipt.StoreGoogle, OrderID: "GPA.1", Status: receipt.StateInit, Message: "first"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, uuid.Nil, first.ID)

	second, created, err := store.InsertIfAbsent(ctx, &Receipt{Store: receipt.StoreGoogle, OrderID: "GPA.1", Status: receipt.StateInit, Message: "second"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "first", second.Message)

	other, created, err := store.InsertIfAbsent(ctx, &Receipt{Store: receipt.StoreGoogleTest, OrderID: "GPA.1", Status: receipt.StateInit})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)
}

func TestTransitionIsConditional(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec, _, err := store.InsertIfAbsent(ctx, &Receipt{Store: receipt.StoreTest, OrderID: "o-1", Status: receipt.StateInit})
	require.NoError(t, err)

	_, err = store.Transition(ctx, rec.ID, receipt.StateInit, receipt.StateValid, Update{})
	require.ErrorIs(t, err, receipt.ErrIllegalTransition)

	next, err := store.Transition(ctx, rec.ID, receipt.StateInit, receipt.StateValidationRequest, Update{})
	require.NoError(t, err)
	require.Equal(t, receipt.StateValidationRequest, next.Status)

	_, err = store.Transition(ctx, rec.ID, receipt.StateInit, receipt.StateValidationRequest, Update{})
	require.ErrorIs(t, err, ErrStateChanged)

	purchasedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	done, err := store.Transition(ctx, rec.ID, receipt.StateValidationRequest, receipt.StateValid, Update{
		ProductID:   "101",
		PurchasedAt: purchasedAt,
		Message:     "ok",
	})
	require.NoError(t, err)
	require.Equal(t, "101", done.ProductID)
	require.True(t, purchasedAt.Equal(done.PurchasedAt))

	require.ErrorIs(t, store.RecordAttempt(ctx, rec.ID, "late"), ErrStateChanged)
}

func TestAssignActionFirstWriterWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec, _, err := store.InsertIfAbsent(ctx, &Receipt{Store: receipt.StoreTest, OrderID: "o-2", Status: receipt.StateInit})
	require.NoError(t, err)

	_, err = store.AssignAction(ctx, rec.ID, "aa", "claim_items", []byte("one"))
	require.ErrorIs(t, err, ErrStateChanged)

	_, err = store.Transition(ctx, rec.ID, receipt.StateInit, receipt.StateValidationRequest, Update{})
	require.NoError(t, err)
	_, err = store.Transition(ctx, rec.ID, receipt.StateValidationRequest, receipt.StateValid, Update{})
	require.NoError(t, err)

	won, err := store.AssignAction(ctx, rec.ID, "aa", "claim_items", []byte("one"))
	require.NoError(t, err)
	lost, err := store.AssignAction(ctx, rec.ID, "bb", "claim_items", []byte("two"))
	require.NoError(t, err)
	require.Equal(t, "aa", won.ActionID)
	require.Equal(t, "aa", lost.ActionID)
	require.Equal(t, []byte("one"), lost.Payload)
}

func TestCountValidAndListStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, created := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour)} {
		rec, _, err := store.InsertIfAbsent(ctx, &Receipt{
			Store: receipt.StoreTest, OrderID: uuid.NewString(), Status: receipt.StateInit,
			AgentAddr: "0xagent", CreatedAt: created, UpdatedAt: created,
		})
		require.NoError(t, err, i)
		_, err = store.Transition(ctx, rec.ID, receipt.StateInit, receipt.StateValidationRequest, Update{})
		require.NoError(t, err)
		_, err = store.Transition(ctx, rec.ID, receipt.StateValidationRequest, receipt.StateValid, Update{ProductID: "101"})
		require.NoError(t, err)
	}
	n, err := store.CountValid(ctx, "0xagent", "101", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	n, err = store.CountValid(ctx, "0xagent", "101", time.Time{})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	pending, _, err := store.InsertIfAbsent(ctx, &Receipt{Store: receipt.StoreTest, OrderID: "pending", Status: receipt.StateInit})
	require.NoError(t, err)
	stale, err := store.ListStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, pending.ID, stale[0].ID)

	stale, err = store.ListStale(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, stale)
}
