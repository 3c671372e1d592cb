package audit

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flakyStore falha as primeiras failN chamadas de Append.
type flakyStore struct {
	mu     sync.Mutex
	failN  int
	calls  int
	rows   []models.AuditLog
	filter Filter
}

func (s *flakyStore) Append(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failN {
		return errors.New("db down")
	}
	s.rows = append(s.rows, *log)
	return nil
}

func (s *flakyStore) List(_ context.Context, f Filter) ([]models.AuditLog, error) {
	s.filter = f
	return s.rows, nil
}

func TestWrite_Success(t *testing.T) {
	store := &flakyStore{}
	rec := NewRecorder(store, zap.NewNop(), 0, 3)

	branch := uint(4)
	err := rec.Write(context.Background(), Entry{
		BranchID:   &branch,
		Actor:      "Ana",
		EntityType: "cash_session",
		EntityID:   "abc",
		Action:     models.AuditActionClose,
		Metadata:   map[string]string{"report_url": "https://x/r"},
	})
	require.NoError(t, err)

	require.Len(t, store.rows, 1)
	assert.Equal(t, models.AuditActionClose, store.rows[0].Action)
	assert.JSONEq(t, `{"report_url":"https://x/r"}`, store.rows[0].Metadata)
	assert.Equal(t, 0, rec.Pending())
}

func TestWrite_NilMetadataIsJSONNull(t *testing.T) {
	store := &flakyStore{}
	rec := NewRecorder(store, zap.NewNop(), 0, 3)

	require.NoError(t, rec.Write(context.Background(), Entry{Action: models.AuditActionOpen}))
	assert.Equal(t, "null", store.rows[0].Metadata)
}

func TestWrite_FailureIsQueuedAndRecovered(t *testing.T) {
	store := &flakyStore{failN: 2}
	rec := NewRecorder(store, zap.NewNop(), 0, 5)

	err := rec.Write(context.Background(), Entry{EntityID: "s1", Action: models.AuditActionClose})
	require.Error(t, err)
	assert.Equal(t, 1, rec.Pending())

	rec.Flush(context.Background()) // segunda falha
	assert.Equal(t, 1, rec.Pending())
	assert.Empty(t, store.rows)

	rec.Flush(context.Background())
	assert.Equal(t, 0, rec.Pending())
	require.Len(t, store.rows, 1)
	assert.Equal(t, "s1", store.rows[0].EntityID)
}

func TestFlush_DropsAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &flakyStore{failN: 100}
	rec := NewRecorder(store, zap.New(core), 0, 2)

	require.Error(t, rec.Write(context.Background(), Entry{EntityID: "s1", Action: models.AuditActionClose}))
	rec.Flush(context.Background())

	assert.Equal(t, 0, rec.Pending())
	require.Equal(t, 1, logs.FilterMessage("audit entry dropped").Len())
}

func TestWrite_SingleAttemptIsNotRetried(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &flakyStore{failN: 100}
	rec := NewRecorder(store, zap.New(core), 0, 1)

	require.Error(t, rec.Write(context.Background(), Entry{EntityID: "s1", Action: models.AuditActionClose}))
	assert.Equal(t, 0, rec.Pending())

	rec.Flush(context.Background())
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 1, logs.FilterMessage("audit entry dropped").Len())
}

func TestFlush_AttemptsIncludeFirstWrite(t *testing.T) {
	store := &flakyStore{failN: 100}
	rec := NewRecorder(store, zap.NewNop(), 0, 3)

	require.Error(t, rec.Write(context.Background(), Entry{EntityID: "s1", Action: models.AuditActionClose}))
	for i := 0; i < 5; i++ {
		rec.Flush(context.Background())
	}
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 0, rec.Pending())
}

func TestWrite_PendingQueueIsBounded(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &flakyStore{failN: 100}
	rec := NewRecorder(store, zap.New(core), 0, 5)
	rec.maxPending = 2

	for i := 0; i < 4; i++ {
		require.Error(t, rec.Write(context.Background(), Entry{EntityID: "s1", Action: models.AuditActionCount}))
	}
	assert.Equal(t, 2, rec.Pending())
	assert.Equal(t, 2, logs.FilterMessage("audit entry dropped").Len())
}

func TestListAuditLogsHandler_ScopesBranch(t *testing.T) {
	branch := uint(3)
	store := &flakyStore{rows: []models.AuditLog{{
		ID: 1, BranchID: &branch, Actor: "Ana", EntityType: "cash_session",
		EntityID: "s1", Action: models.AuditActionClose, Metadata: `{"report_url":"u"}`,
	}}}
	rec := NewRecorder(store, zap.NewNop(), 0, 1)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserRoleKey, models.RoleOperator)
		c.Locals(auth.CtxBranchIDKey, &branch)
		return c.Next()
	})
	app.Get("/audit-logs", ListAuditLogsHandler(rec))

	resp, err := app.Test(httptest.NewRequest("GET", "/audit-logs?branch_id=99&entity_type=cash_session", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, store.filter.BranchID)
	assert.Equal(t, uint(3), *store.filter.BranchID)
	assert.Equal(t, "cash_session", store.filter.EntityType)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"metadata":{"report_url":"u"}`)
}
