package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/access"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/plan"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/trial"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/database"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/jwtutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func resourceTestHandler(t *testing.T) (*ResourceHandler, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Trial{},
		&model.Subscription{},
		&model.WhatsAppInstance{},
		&model.Agent{},
	))

	// Handlers persist rows through the package-level connection.
	previous := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = previous })

	trials := trial.NewEngine(db, 7)
	plans := plan.NewEngine(db, plan.DefaultCatalog())
	return NewResourceHandler(access.NewService(db, trials), plans), db
}

func claimsContext(body string, claims *jwtutil.UserClaims) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/instances", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if claims != nil {
		c.Set("user", claims)
	}
	return c, rec
}

func tenantUser(tenantID uint) *jwtutil.UserClaims {
	return &jwtutil.UserClaims{
		UserID:   10,
		Email:    "owner@example.com",
		TenantID: &tenantID,
		Role:     "admin",
	}
}

func grantTrial(t *testing.T, db *gorm.DB, tenantID uint) {
	t.Helper()
	trialRow := model.Trial{
		TenantID:  tenantID,
		Status:    model.TrialActive,
		StartedAt: time.Now(),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(&trialRow).Error)
}

func grantStarterSubscription(t *testing.T, db *gorm.DB, tenantID uint) {
	t.Helper()
	sub := model.Subscription{
		TenantID: tenantID,
		PlanName: "starter",
		PlanType: model.PlanStarter,
		Quantity: 1,
		Status:   model.SubscriptionActive,
	}
	require.NoError(t, db.Create(&sub).Error)
}

func TestCreateInstanceRequiresClaims(t *testing.T) {
	handler, _ := resourceTestHandler(t)

	c, rec := claimsContext(`{"name":"sales"}`, nil)
	require.NoError(t, handler.CreateInstance(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateInstanceDeniedWithoutAccess(t *testing.T) {
	handler, _ := resourceTestHandler(t)

	c, rec := claimsContext(`{"name":"sales"}`, tenantUser(1))
	require.NoError(t, handler.CreateInstance(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "access denied")
}

func TestCreateInstanceAllowedWithinLimits(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantStarterSubscription(t, db, 1)

	c, rec := claimsContext(`{"name":"sales"}`, tenantUser(1))
	require.NoError(t, handler.CreateInstance(c))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var count int64
	require.NoError(t, db.Model(&model.WhatsAppInstance{}).Where("tenant_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateInstanceTrialOnlyDeniedByZeroLimits(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantTrial(t, db, 1)

	// A trial grants access but no plan allowances, so the limit check
	// still rejects the creation.
	c, rec := claimsContext(`{"name":"sales"}`, tenantUser(1))
	require.NoError(t, handler.CreateInstance(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit_reached")
}

func TestCreateInstanceDeniedAtPlanLimit(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantStarterSubscription(t, db, 1)

	// Starter allows two native instances.
	for _, name := range []string{"sales", "support"} {
		require.NoError(t, db.Create(&model.WhatsAppInstance{
			TenantID:     1,
			Name:         name,
			ProviderType: model.ProviderNative,
			Status:       "connected",
		}).Error)
	}

	c, rec := claimsContext(`{"name":"billing"}`, tenantUser(1))
	require.NoError(t, handler.CreateInstance(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit_reached")
	assert.Contains(t, rec.Body.String(), "2/2")
}

func TestCreateInstanceRejectsInvalidProvider(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantStarterSubscription(t, db, 1)

	c, rec := claimsContext(`{"name":"sales","provider_type":"carrier_pigeon"}`, tenantUser(1))
	require.NoError(t, handler.CreateInstance(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInstanceSuperAdminSkipsGate(t *testing.T) {
	handler, db := resourceTestHandler(t)

	tenantID := uint(1)
	claims := &jwtutil.UserClaims{
		UserID:   1,
		Email:    "root@example.com",
		TenantID: &tenantID,
		Role:     jwtutil.RoleSuperAdmin,
	}
	c, rec := claimsContext(`{"name":"ops"}`, claims)
	require.NoError(t, handler.CreateInstance(c))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var count int64
	require.NoError(t, db.Model(&model.WhatsAppInstance{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateAgentDeniedAtPlanLimit(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantStarterSubscription(t, db, 1)

	// Starter allows one internal agent.
	require.NoError(t, db.Create(&model.Agent{
		TenantID:  1,
		Name:      "concierge",
		AgentType: model.AgentInternal,
		Active:    true,
	}).Error)

	c, rec := claimsContext(`{"name":"closer","agent_type":"internal"}`, tenantUser(1))
	require.NoError(t, handler.CreateAgent(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit_reached")
}

func TestCreateAgentAllowedWithinLimit(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantStarterSubscription(t, db, 1)

	c, rec := claimsContext(`{"name":"closer","agent_type":"external","prompt":"hello"}`, tenantUser(1))
	require.NoError(t, handler.CreateAgent(c))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var agent model.Agent
	require.NoError(t, db.Where("tenant_id = ?", 1).First(&agent).Error)
	assert.Equal(t, model.AgentExternal, agent.AgentType)
	assert.True(t, agent.Active)
}

func TestListInstancesScopedToTenant(t *testing.T) {
	handler, db := resourceTestHandler(t)

	require.NoError(t, db.Create(&model.WhatsAppInstance{TenantID: 1, Name: "mine", ProviderType: model.ProviderNative}).Error)
	require.NoError(t, db.Create(&model.WhatsAppInstance{TenantID: 2, Name: "theirs", ProviderType: model.ProviderNative}).Error)

	c, rec := claimsContext("", tenantUser(1))
	require.NoError(t, handler.ListInstances(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mine")
	assert.NotContains(t, rec.Body.String(), "theirs")
}

func TestGetPlanUsageReportsLimitsAndPercentages(t *testing.T) {
	handler, db := resourceTestHandler(t)
	grantStarterSubscription(t, db, 1)

	require.NoError(t, db.Create(&model.WhatsAppInstance{
		TenantID:     1,
		Name:         "sales",
		ProviderType: model.ProviderNative,
	}).Error)

	c, rec := claimsContext("", tenantUser(1))
	require.NoError(t, handler.GetPlanUsage(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usage")
	assert.Contains(t, rec.Body.String(), "total_limits")
	assert.Contains(t, rec.Body.String(), "percentages")
}
