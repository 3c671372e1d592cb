package cashflow_test

import (
	"context"
	"testing"
	"time"

	"pdv-backend/internal/cashflow"
	"pdv-backend/internal/database/dbtest"
	"pdv-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openSession(t *testing.T, db *gorm.DB, branch uint) *models.CashSession {
	t.Helper()
	s := &models.CashSession{
		ID:            uuid.New(),
		BranchID:      branch,
		OpeningAmount: decimal.Zero,
		OpenedAt:      time.Now(),
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func movement(session uuid.UUID, typ models.MovementType, amount string) *models.CashMovement {
	signed, _ := cashflow.SignedAmount(typ, decimal.RequireFromString(amount))
	return &models.CashMovement{
		CashSessionID: session,
		Type:          typ,
		Method:        models.CashMethodCash,
		Amount:        signed,
	}
}

func TestLedger_AppendAndSummary(t *testing.T) {
	db := dbtest.New(t)
	ledger := cashflow.NewLedger(db)
	ctx := context.Background()
	s := openSession(t, db, 1)

	require.NoError(t, ledger.Append(ctx, nil, movement(s.ID, models.MovementSale, "100.00")))
	require.NoError(t, ledger.Append(ctx, nil, movement(s.ID, models.MovementSale, "20.50")))
	require.NoError(t, ledger.Append(ctx, nil, movement(s.ID, models.MovementRefund, "20.00")))

	movs, err := ledger.ListBySession(ctx, s.ID, nil, "")
	require.NoError(t, err)
	assert.Len(t, movs, 3)

	summary, err := ledger.SummaryByType(ctx, s.ID, nil)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	byType := map[models.MovementType]cashflow.TypeTotal{}
	for _, it := range summary {
		byType[it.Type] = it
	}
	assert.True(t, byType[models.MovementSale].Total.Equal(decimal.RequireFromString("120.50")))
	assert.EqualValues(t, 2, byType[models.MovementSale].Count)
	assert.True(t, byType[models.MovementRefund].Total.Equal(decimal.RequireFromString("-20.00")))
}

func TestLedger_RejectsClosedOrForeignSession(t *testing.T) {
	db := dbtest.New(t)
	ledger := cashflow.NewLedger(db)
	ctx := context.Background()
	s := openSession(t, db, 1)

	other := uint(2)
	err := ledger.Append(ctx, &other, movement(s.ID, models.MovementSale, "1"))
	assert.ErrorIs(t, err, cashflow.ErrSessionNotFound)

	_, err = ledger.ListBySession(ctx, s.ID, &other, "")
	assert.ErrorIs(t, err, cashflow.ErrSessionNotFound)

	require.NoError(t, db.Model(s).Update("closed_at", time.Now()).Error)
	err = ledger.Append(ctx, nil, movement(s.ID, models.MovementSale, "1"))
	assert.ErrorIs(t, err, cashflow.ErrSessionClosed)

	movs, err := ledger.ListBySession(ctx, s.ID, nil, "")
	require.NoError(t, err)
	assert.Empty(t, movs)
}
