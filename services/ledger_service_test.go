package services

import (
	"testing"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceIsSumOfEntries(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	family := seedFamily(t, db, "Summers")
	child := seedChild(t, db, family.ID, "Max")

	_, err := ledger.Append(child.ID, 100, models.ReasonTaskReward, uuid.NewString())
	require.NoError(t, err)
	_, err = ledger.Append(child.ID, 50, models.ReasonReferralBonus, uuid.NewString())
	require.NoError(t, err)
	_, err = ledger.Append(child.ID, -30, models.ReasonManualAdjustment, uuid.NewString())
	require.NoError(t, err)

	balance, err := ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), balance)

	entries, err := ledger.History(child.ID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestBalanceEmptyLedgerIsZero(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)

	balance, err := ledger.Balance(uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestAppendRejectsBadAmounts(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	family := seedFamily(t, db, "Summers")
	child := seedChild(t, db, family.ID, "Max")

	_, err := ledger.Append(child.ID, 0, models.ReasonTaskReward, uuid.NewString())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Append(child.ID, -10, models.ReasonTaskReward, uuid.NewString())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ledger.Append(child.ID, -10, models.ReasonBattleReward, uuid.NewString())
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Manual adjustments may debit
	_, err = ledger.Append(child.ID, -10, models.ReasonManualAdjustment, uuid.NewString())
	assert.NoError(t, err)
}

func TestAppendDuplicateReferenceIsRejected(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	family := seedFamily(t, db, "Summers")
	child := seedChild(t, db, family.ID, "Max")
	other := seedChild(t, db, family.ID, "Mia")

	ref := uuid.NewString()
	_, err := ledger.Append(child.ID, 100, models.ReasonTaskReward, ref)
	require.NoError(t, err)

	_, err = ledger.Append(child.ID, 100, models.ReasonTaskReward, ref)
	assert.ErrorIs(t, err, ErrDuplicateReference)

	balance, err := ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// Same reference for a different child or reason is a distinct payment
	_, err = ledger.Append(other.ID, 100, models.ReasonTaskReward, ref)
	assert.NoError(t, err)
	_, err = ledger.Append(child.ID, 100, models.ReasonBattleReward, ref)
	assert.NoError(t, err)
}
