package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/model"
	"github.com/hayttle/whatsapp-agents-ai-sub001/internal/reconciler"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/billing"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/database"
	"github.com/hayttle/whatsapp-agents-ai-sub001/pkg/jwtutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeGateway plays the billing gateway and records every call it serves
type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	payments []billing.Payment
}

func (g *fakeGateway) record(r *http.Request) {
	g.mu.Lock()
	g.calls = append(g.calls, r.Method+" "+r.URL.Path)
	g.mu.Unlock()
}

func (g *fakeGateway) callCount(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, c := range g.calls {
		if c == call {
			count++
		}
	}
	return count
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.record(r)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/customers":
		_ = json.NewEncoder(w).Encode(billing.Customer{ID: "cus_001", Name: "Acme"})
	case r.Method == http.MethodPost && r.URL.Path == "/subscriptions":
		_ = json.NewEncoder(w).Encode(billing.Subscription{ID: "sub_remote_1", Customer: "cus_001", Status: "ACTIVE"})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/subscriptions/"):
		_, _ = w.Write([]byte(`{"deleted": true}`))
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/subscriptions/"):
		_ = json.NewEncoder(w).Encode(billing.Subscription{ID: "sub_remote_1", Status: "ACTIVE"})
	case r.Method == http.MethodGet && r.URL.Path == "/payments":
		_ = json.NewEncoder(w).Encode(struct {
			Data       []billing.Payment `json:"data"`
			TotalCount int               `json:"totalCount"`
		}{Data: g.payments, TotalCount: len(g.payments)})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"description":"not found"}]}`))
	}
}

func subscriptionTestEnv(t *testing.T) (*SubscriptionHandler, *gorm.DB, *fakeGateway) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Tenant{},
		&model.Subscription{},
		&model.SubscriptionPayment{},
	))

	previous := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = previous })

	gateway := &fakeGateway{}
	server := httptest.NewServer(gateway)
	t.Cleanup(server.Close)

	client := billing.NewClient(server.URL, "key_test", zap.NewNop())
	handler := NewSubscriptionHandler(client, reconciler.New(db, zap.NewNop()), nil)
	return handler, db, gateway
}

func seedTenant(t *testing.T, db *gorm.DB, billingCustomerID *string) model.Tenant {
	t.Helper()
	tenant := model.Tenant{Name: "Acme", BillingCustomerID: billingCustomerID, Status: "active"}
	require.NoError(t, db.Create(&tenant).Error)
	return tenant
}

func seedOwnedSubscription(t *testing.T, db *gorm.DB, tenantID uint, status model.SubscriptionStatus) model.Subscription {
	t.Helper()
	gatewayID := "sub_remote_1"
	sub := model.Subscription{
		TenantID:              tenantID,
		GatewaySubscriptionID: &gatewayID,
		PlanName:              "Starter",
		PlanType:              model.PlanStarter,
		Quantity:              1,
		Status:                status,
		Price:                 99.90,
		Value:                 99.90,
	}
	require.NoError(t, db.Create(&sub).Error)
	return sub
}

func subscriptionContext(method, path, body string, claims *jwtutil.UserClaims, id uint) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if claims != nil {
		c.Set("user", claims)
	}
	if id != 0 {
		c.SetParamNames("id")
		c.SetParamValues(fmt.Sprintf("%d", id))
	}
	return c, rec
}

func TestCreateSubscriptionCheckout(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	tenant := seedTenant(t, db, nil)

	body := `{"plan_name":"Starter","plan_type":"starter","quantity":2,"price":49.95}`
	c, rec := subscriptionContext(http.MethodPost, "/subscriptions", body, tenantUser(tenant.ID), 0)
	require.NoError(t, handler.CreateSubscription(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, gateway.callCount("POST /customers"))
	assert.Equal(t, 1, gateway.callCount("POST /subscriptions"))

	var sub model.Subscription
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).First(&sub).Error)
	assert.Equal(t, model.SubscriptionPending, sub.Status)
	require.NotNil(t, sub.GatewaySubscriptionID)
	assert.Equal(t, "sub_remote_1", *sub.GatewaySubscriptionID)
	assert.Equal(t, 2, sub.Quantity)
	assert.Equal(t, 99.90, sub.Value)

	var stored model.Tenant
	require.NoError(t, db.First(&stored, tenant.ID).Error)
	require.NotNil(t, stored.BillingCustomerID)
	assert.Equal(t, "cus_001", *stored.BillingCustomerID)
}

func TestCreateSubscriptionReusesBillingCustomer(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	existing := "cus_existing"
	tenant := seedTenant(t, db, &existing)

	body := `{"plan_name":"Pro","plan_type":"pro","quantity":1,"price":199.90}`
	c, rec := subscriptionContext(http.MethodPost, "/subscriptions", body, tenantUser(tenant.ID), 0)
	require.NoError(t, handler.CreateSubscription(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, gateway.callCount("POST /customers"))
	assert.Equal(t, 1, gateway.callCount("POST /subscriptions"))
}

func TestCreateSubscriptionCompensatesFailedLocalInsert(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	tenant := seedTenant(t, db, nil)

	// With the table gone the local insert fails after the remote
	// subscription was created, which must trigger the compensating cancel.
	require.NoError(t, db.Migrator().DropTable(&model.Subscription{}))

	body := `{"plan_name":"Starter","plan_type":"starter","quantity":1,"price":99.90}`
	c, rec := subscriptionContext(http.MethodPost, "/subscriptions", body, tenantUser(tenant.ID), 0)
	require.NoError(t, handler.CreateSubscription(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, gateway.callCount("POST /subscriptions"))
	assert.Equal(t, 1, gateway.callCount("DELETE /subscriptions/sub_remote_1"))
}

func TestCreateSubscriptionValidation(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	tenant := seedTenant(t, db, nil)

	tests := []struct {
		name string
		body string
	}{
		{"zero quantity", `{"plan_name":"Starter","plan_type":"starter","quantity":0,"price":99.90}`},
		{"unknown plan type", `{"plan_name":"Gold","plan_type":"gold","quantity":1,"price":99.90}`},
		{"zero price", `{"plan_name":"Starter","plan_type":"starter","quantity":1,"price":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := subscriptionContext(http.MethodPost, "/subscriptions", tt.body, tenantUser(tenant.ID), 0)
			require.NoError(t, handler.CreateSubscription(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Nothing reached the gateway.
	assert.Equal(t, 0, gateway.callCount("POST /subscriptions"))
}

func TestCancelSubscriptionCrossTenantForbidden(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 2, model.SubscriptionActive)

	c, rec := subscriptionContext(http.MethodDelete, "/subscriptions/1", "", tenantUser(1), sub.ID)
	require.NoError(t, handler.CancelSubscription(c))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, gateway.callCount("DELETE /subscriptions/sub_remote_1"))

	var stored model.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	assert.Equal(t, model.SubscriptionActive, stored.Status)
}

func TestCancelSubscriptionSuperAdminCrossTenant(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 2, model.SubscriptionActive)

	adminTenant := uint(1)
	claims := &jwtutil.UserClaims{
		UserID:   1,
		Email:    "root@example.com",
		TenantID: &adminTenant,
		Role:     jwtutil.RoleSuperAdmin,
	}
	c, rec := subscriptionContext(http.MethodDelete, "/subscriptions/1", "", claims, sub.ID)
	require.NoError(t, handler.CancelSubscription(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gateway.callCount("DELETE /subscriptions/sub_remote_1"))

	var stored model.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	assert.Equal(t, model.SubscriptionCancelled, stored.Status)
}

func TestCancelSubscriptionOwnTenant(t *testing.T) {
	handler, db, _ := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 1, model.SubscriptionActive)

	c, rec := subscriptionContext(http.MethodDelete, "/subscriptions/1", "", tenantUser(1), sub.ID)
	require.NoError(t, handler.CancelSubscription(c))

	assert.Equal(t, http.StatusOK, rec.Code)

	var stored model.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	assert.Equal(t, model.SubscriptionCancelled, stored.Status)
}

func TestReactivateSubscriptionOnlyFromCancelled(t *testing.T) {
	handler, db, _ := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 1, model.SubscriptionActive)

	c, rec := subscriptionContext(http.MethodPost, "/subscriptions/1/reactivate", "", tenantUser(1), sub.ID)
	require.NoError(t, handler.ReactivateSubscription(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReactivateCancelledSubscription(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 1, model.SubscriptionCancelled)

	c, rec := subscriptionContext(http.MethodPost, "/subscriptions/1/reactivate", "", tenantUser(1), sub.ID)
	require.NoError(t, handler.ReactivateSubscription(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gateway.callCount("PUT /subscriptions/sub_remote_1"))

	var stored model.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	assert.Equal(t, model.SubscriptionPending, stored.Status)
}

func TestUpdateQuantityRejectsZero(t *testing.T) {
	handler, db, _ := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 1, model.SubscriptionActive)

	c, rec := subscriptionContext(http.MethodPut, "/subscriptions/1/quantity", `{"quantity":0}`, tenantUser(1), sub.ID)
	require.NoError(t, handler.UpdateQuantity(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateQuantityMirrorsValue(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 1, model.SubscriptionActive)

	c, rec := subscriptionContext(http.MethodPut, "/subscriptions/1/quantity", `{"quantity":3}`, tenantUser(1), sub.ID)
	require.NoError(t, handler.UpdateQuantity(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gateway.callCount("PUT /subscriptions/sub_remote_1"))

	var stored model.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	assert.Equal(t, 3, stored.Quantity)
	assert.InDelta(t, 3*99.90, stored.Value, 0.001)
}

func TestSyncPaymentsReplaysReceivedCharges(t *testing.T) {
	handler, db, gateway := subscriptionTestEnv(t)
	sub := seedOwnedSubscription(t, db, 1, model.SubscriptionPending)

	gateway.payments = []billing.Payment{
		{ID: "pay_001", Subscription: "sub_remote_1", Value: 99.90, Status: "RECEIVED", PaymentDate: "2026-08-09", BillingType: "PIX"},
		{ID: "pay_002", Subscription: "sub_remote_1", Value: 99.90, Status: "PENDING"},
	}

	c, rec := subscriptionContext(http.MethodPost, "/subscriptions/1/payments/sync", "", tenantUser(1), sub.ID)
	require.NoError(t, handler.SyncPayments(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"synced":1`)

	var count int64
	require.NoError(t, db.Model(&model.SubscriptionPayment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var stored model.Subscription
	require.NoError(t, db.First(&stored, sub.ID).Error)
	assert.Equal(t, model.SubscriptionActive, stored.Status)
}
