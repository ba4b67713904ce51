package services

import (
	"testing"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidationEnv(t *testing.T) (*ValidationService, *LedgerService, *models.Parent, *models.Child, *models.ValidationTask) {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	svc := NewValidationService(db, ledger)

	family := seedFamily(t, db, "Summers")
	parent := seedParent(t, db, family.ID, "SUMM0001")
	child := seedChild(t, db, family.ID, "Max")
	task := seedTask(t, db, family.ID, 100)
	return svc, ledger, parent, child, task
}

func TestApprovalPaysExactlyOnce(t *testing.T) {
	svc, ledger, parent, child, task := newValidationEnv(t)

	request, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, request.Status)

	resolved, err := svc.Resolve(request.ID, parent.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, parent.ID, *resolved.ResolvedBy)

	balance, err := ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// A repeated approve of the same request must not pay again
	_, err = svc.Resolve(request.ID, parent.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	balance, err = ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestDenialPaysNothing(t *testing.T) {
	svc, ledger, parent, child, task := newValidationEnv(t)

	request, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)

	resolved, err := svc.Resolve(request.ID, parent.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.RequestDenied, resolved.Status)

	balance, err := ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// Denial is terminal too
	_, err = svc.Resolve(request.ID, parent.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestDuplicatePendingRejected(t *testing.T) {
	svc, _, parent, child, task := newValidationEnv(t)

	first, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)

	_, err = svc.RequestValidation(child.ID, task.ID, nil)
	assert.ErrorIs(t, err, ErrDuplicatePending)

	// Once resolved, the pair is claimable again
	_, err = svc.Resolve(first.ID, parent.ID, false)
	require.NoError(t, err)

	_, err = svc.RequestValidation(child.ID, task.ID, nil)
	assert.NoError(t, err)
}

func TestPendingUniquenessIsSchemaEnforced(t *testing.T) {
	svc, ledger, parent, child, task := newValidationEnv(t)

	first, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)

	// A writer that slips past the service's duplicate check still hits the
	// partial unique index
	err = svc.DB.Create(&models.ValidationRequest{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		ChildID:     child.ID,
		Status:      models.RequestPending,
		RequestedAt: time.Now(),
	}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	// Resolved rows leave the index, so the pair is claimable again
	_, err = svc.Resolve(first.ID, parent.ID, true)
	require.NoError(t, err)
	second, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)

	// The second approval pays through its own reference
	_, err = svc.Resolve(second.ID, parent.ID, true)
	require.NoError(t, err)
	balance, err := ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestStaleRequestExpiresInsteadOfResolving(t *testing.T) {
	svc, ledger, parent, child, task := newValidationEnv(t)

	request, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)

	backdate(t, svc.DB, &models.ValidationRequest{}, request.ID, "requested_at", PendingRequestWindow+time.Hour)

	_, err = svc.Resolve(request.ID, parent.ID, true)
	assert.ErrorIs(t, err, ErrExpired)

	var stored models.ValidationRequest
	require.NoError(t, svc.DB.First(&stored, "id = ?", request.ID).Error)
	assert.Equal(t, models.RequestExpired, stored.Status)

	balance, err := ledger.Balance(child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// The stale claim no longer blocks a fresh one
	_, err = svc.RequestValidation(child.ID, task.ID, nil)
	assert.NoError(t, err)
}

func TestRequestValidationScoping(t *testing.T) {
	svc, _, _, child, task := newValidationEnv(t)

	_, err := svc.RequestValidation(child.ID, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RequestValidation(uuid.NewString(), task.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// A task from another family is invisible to this child
	otherFamily := seedFamily(t, svc.DB, "Winters")
	otherTask := seedTask(t, svc.DB, otherFamily.ID, 40)
	_, err = svc.RequestValidation(child.ID, otherTask.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// Inactive children cannot claim
	require.NoError(t, svc.DB.Model(&models.Child{}).Where("id = ?", child.ID).Update("is_active", false).Error)
	_, err = svc.RequestValidation(child.ID, task.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRequestAndResolveEnqueueNotifications(t *testing.T) {
	svc, _, parent, child, task := newValidationEnv(t)

	request, err := svc.RequestValidation(child.ID, task.ID, nil)
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.DB.Model(&models.NotificationEvent{}).
		Where("event_type = ?", models.NotifyValidationRequested).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = svc.Resolve(request.ID, parent.ID, true)
	require.NoError(t, err)

	require.NoError(t, svc.DB.Model(&models.NotificationEvent{}).
		Where("event_type = ?", models.NotifyValidationResolved).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
