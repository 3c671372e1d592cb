package serviceorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"pdv-backend/internal/audit"
	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	orders map[uuid.UUID]*models.ServiceOrder
	listed []models.ServiceOrderStatus
}

func newMemStore() *memStore {
	return &memStore{orders: map[uuid.UUID]*models.ServiceOrder{}}
}

func (m *memStore) Create(_ context.Context, o *models.ServiceOrder) error {
	o.ID = uuid.New()
	m.orders[o.ID] = o
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID, scope *uint) (*models.ServiceOrder, error) {
	o, ok := m.orders[id]
	if !ok || (scope != nil && o.BranchID != *scope) {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *memStore) List(_ context.Context, scope *uint, statuses []models.ServiceOrderStatus) ([]models.ServiceOrder, error) {
	m.listed = statuses
	var out []models.ServiceOrder
	for _, o := range m.orders {
		if scope == nil || o.BranchID == *scope {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id uuid.UUID, scope *uint, to models.ServiceOrderStatus) (*models.ServiceOrder, models.ServiceOrderStatus, error) {
	o, err := m.Get(ctx, id, scope)
	if err != nil {
		return nil, "", err
	}
	from := o.Status
	if !CanTransition(from, to) {
		return nil, from, ErrInvalidTransition
	}
	o.Status = to
	return o, from, nil
}

type auditSpy struct {
	entries []audit.Entry
	err     error
}

func (a *auditSpy) Write(_ context.Context, e audit.Entry) error {
	a.entries = append(a.entries, e)
	return a.err
}

func newApp(store Store, rec AuditWriter, branch uint) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserRoleKey, models.RoleOperator)
		c.Locals(auth.CtxUserNameKey, "Ana")
		c.Locals(auth.CtxBranchIDKey, &branch)
		return c.Next()
	})
	app.Post("/service-orders", CreateServiceOrderHandler(store, rec, zap.NewNop()))
	app.Get("/service-orders", ListServiceOrdersHandler(store))
	app.Patch("/service-orders/:id/status", UpdateServiceOrderStatusHandler(store, rec, zap.NewNop()))
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.OrderOpen, models.OrderInProgress))
	assert.True(t, CanTransition(models.OrderInProgress, models.OrderCompleted))
	assert.True(t, CanTransition(models.OrderCompleted, models.OrderDelivered))
	assert.False(t, CanTransition(models.OrderCanceled, models.OrderOpen))
	assert.False(t, CanTransition(models.OrderDelivered, models.OrderCompleted))
	assert.False(t, CanTransition(models.OrderOpen, models.OrderDelivered))
}

func TestCreateServiceOrder_UsesTokenBranchAndAudits(t *testing.T) {
	store := newMemStore()
	spy := &auditSpy{}
	app := newApp(store, spy, 7)

	status, body := do(t, app, "POST", "/service-orders", `{"customer_name":" João ","total":"150.00","branch_id":99}`)
	require.Equal(t, fiber.StatusCreated, status, body)

	var resp ServiceOrderResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, uint(7), resp.BranchID)
	assert.Equal(t, "João", resp.CustomerName)
	assert.Equal(t, "150.00", resp.Total)
	assert.Equal(t, models.OrderOpen, resp.Status)

	require.Len(t, spy.entries, 1)
	assert.Equal(t, models.AuditActionCreate, spy.entries[0].Action)
	assert.Equal(t, "Ana", spy.entries[0].Actor)
}

func TestCreateServiceOrder_Validation(t *testing.T) {
	app := newApp(newMemStore(), &auditSpy{}, 1)

	status, _ := do(t, app, "POST", "/service-orders", `{"customer_name":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "POST", "/service-orders", `{"customer_name":"x","total":"-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "POST", "/service-orders", `{"customer_name":"x","total":"1e100000000"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateServiceOrder_AuditFailureIsNotFatal(t *testing.T) {
	app := newApp(newMemStore(), &auditSpy{err: errors.New("db down")}, 1)

	status, _ := do(t, app, "POST", "/service-orders", `{"customer_name":"x"}`)
	assert.Equal(t, fiber.StatusCreated, status)
}

func TestListServiceOrders_StatusFilter(t *testing.T) {
	store := newMemStore()
	app := newApp(store, &auditSpy{}, 1)

	status, _ := do(t, app, "GET", "/service-orders?status=open,in_progress", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []models.ServiceOrderStatus{models.OrderOpen, models.OrderInProgress}, store.listed)

	status, _ = do(t, app, "GET", "/service-orders?status=PAID", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateStatus(t *testing.T) {
	store := newMemStore()
	spy := &auditSpy{}
	app := newApp(store, spy, 1)

	order := &models.ServiceOrder{BranchID: 1, CustomerName: "x", Total: decimal.Zero, Status: models.OrderOpen}
	require.NoError(t, store.Create(context.Background(), order))
	target := "/service-orders/" + order.ID.String() + "/status"

	status, body := do(t, app, "PATCH", target, `{"status":"completed"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	require.Len(t, spy.entries, 1)
	assert.Equal(t, models.AuditActionStatusChange, spy.entries[0].Action)

	status, body = do(t, app, "PATCH", target, `{"status":"OPEN"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, body, "COMPLETED")

	status, _ = do(t, app, "PATCH", "/service-orders/"+uuid.NewString()+"/status", `{"status":"CANCELED"}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = do(t, app, "PATCH", "/service-orders/nope/status", `{"status":"CANCELED"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestUpdateStatus_OtherBranchIsNotFound(t *testing.T) {
	store := newMemStore()
	app := newApp(store, &auditSpy{}, 1)

	order := &models.ServiceOrder{BranchID: 2, CustomerName: "x", Status: models.OrderOpen}
	require.NoError(t, store.Create(context.Background(), order))

	status, _ := do(t, app, "PATCH", "/service-orders/"+order.ID.String()+"/status", `{"status":"CANCELED"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
}
