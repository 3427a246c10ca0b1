package access

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/trial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Trial{}, &model.Subscription{}))
	return NewService(db, trial.NewEngine(db, 7)), db
}

func seedTrial(t *testing.T, db *gorm.DB, tenantID uint, expiresAt time.Time, status model.TrialStatus) {
	t.Helper()
	require.NoError(t, db.Create(&model.Trial{
		TenantID:  tenantID,
		StartedAt: expiresAt.Add(-7 * 24 * time.Hour),
		ExpiresAt: expiresAt,
		Status:    status,
	}).Error)
}

func seedSubscription(t *testing.T, db *gorm.DB, tenantID uint, status model.SubscriptionStatus) {
	t.Helper()
	require.NoError(t, db.Create(&model.Subscription{
		TenantID: tenantID,
		PlanName: "starter",
		PlanType: model.PlanStarter,
		Quantity: 1,
		Status:   status,
	}).Error)
}

func TestGetAccessInfoActiveSubscriptionExpiredTrial(t *testing.T) {
	service, db := testService(t)

	seedSubscription(t, db, 1, model.SubscriptionActive)
	seedTrial(t, db, 1, time.Now().Add(-24*time.Hour), model.TrialExpired)

	info, err := service.GetAccessInfo(1)
	require.NoError(t, err)

	assert.True(t, info.HasAccess)
	assert.True(t, info.HasActiveSubscription)
	assert.NotNil(t, info.Subscription)
	assert.False(t, info.TrialStatus.HasActiveTrial)
}

func TestGetAccessInfoTrialOnly(t *testing.T) {
	service, db := testService(t)

	seedTrial(t, db, 1, time.Now().Add(3*24*time.Hour), model.TrialActive)

	info, err := service.GetAccessInfo(1)
	require.NoError(t, err)

	assert.True(t, info.HasAccess)
	assert.False(t, info.HasActiveSubscription)
	assert.Nil(t, info.Subscription)
	assert.True(t, info.TrialStatus.HasActiveTrial)
}

func TestGetAccessInfoNoGrants(t *testing.T) {
	service, db := testService(t)

	seedTrial(t, db, 1, time.Now().Add(-24*time.Hour), model.TrialActive)

	info, err := service.GetAccessInfo(1)
	require.NoError(t, err)

	assert.False(t, info.HasAccess)
	assert.False(t, info.HasActiveSubscription)
	assert.True(t, info.TrialStatus.IsExpired)
}

func TestGetAccessInfoNothingAtAll(t *testing.T) {
	service, _ := testService(t)

	info, err := service.GetAccessInfo(1)
	require.NoError(t, err)

	assert.False(t, info.HasAccess)
	assert.False(t, info.HasActiveSubscription)
}

func TestGetAccessInfoOverdueSubscriptionDoesNotGrant(t *testing.T) {
	service, db := testService(t)

	seedSubscription(t, db, 1, model.SubscriptionOverdue)
	seedTrial(t, db, 1, time.Now().Add(-24*time.Hour), model.TrialExpired)

	info, err := service.GetAccessInfo(1)
	require.NoError(t, err)

	assert.False(t, info.HasAccess)
	assert.False(t, info.HasActiveSubscription)
}

func TestGetAccessInfoPendingSubscriptionGrants(t *testing.T) {
	service, db := testService(t)

	seedSubscription(t, db, 1, model.SubscriptionPending)

	info, err := service.GetAccessInfo(1)
	require.NoError(t, err)

	assert.True(t, info.HasAccess)
	assert.True(t, info.HasActiveSubscription)
}

func TestHasAccessSubscriptionShortCircuit(t *testing.T) {
	service, db := testService(t)

	seedSubscription(t, db, 1, model.SubscriptionActive)

	hasAccess, err := service.HasAccess(1)
	require.NoError(t, err)
	assert.True(t, hasAccess)
}

func TestHasAccessFallsThroughToTrial(t *testing.T) {
	service, db := testService(t)

	seedTrial(t, db, 1, time.Now().Add(24*time.Hour), model.TrialActive)

	hasAccess, err := service.HasAccess(1)
	require.NoError(t, err)
	assert.True(t, hasAccess)

	hasAccess, err = service.HasAccess(2)
	require.NoError(t, err)
	assert.False(t, hasAccess)
}

func TestAccessIsolatedPerTenant(t *testing.T) {
	service, db := testService(t)

	seedSubscription(t, db, 1, model.SubscriptionActive)

	info, err := service.GetAccessInfo(2)
	require.NoError(t, err)
	assert.False(t, info.HasAccess)
}
