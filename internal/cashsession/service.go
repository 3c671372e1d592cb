package cashsession

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pdv-backend/internal/audit"
	"pdv-backend/internal/events"
	"pdv-backend/internal/lock"
	"pdv-backend/internal/models"
	"pdv-backend/internal/report"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const closeLockTTL = 30 * time.Second

type Store interface {
	Create(ctx context.Context, s *models.CashSession, opening *models.CashMovement) error
	Get(ctx context.Context, id uuid.UUID, scope *uint) (*models.CashSession, error)
	List(ctx context.Context, scope *uint, status models.SessionStatus) ([]models.CashSession, error)
	Movements(ctx context.Context, id uuid.UUID) ([]models.CashMovement, error)
	SetCountedAmount(ctx context.Context, id uuid.UUID, scope *uint, amount decimal.Decimal) (*models.CashSession, error)
	Close(ctx context.Context, id uuid.UUID, scope *uint, upd CloseUpdate) (*models.CashSession, Reconciliation, error)
}

type ReportEmitter interface {
	Emit(ctx context.Context, s report.Summary) (*report.Result, error)
}

type AuditWriter interface {
	Write(ctx context.Context, e audit.Entry) error
}

type Deps struct {
	Store   Store
	Orders  OpenOrderCounter
	Reports ReportEmitter
	Audit   AuditWriter
	Locker  lock.Locker      // opcional
	Events  events.Publisher // opcional
	Log     *zap.Logger
}

// Service orquestra abertura, contagem e fechamento de caixa.
type Service struct {
	store   Store
	gate    *OrderGate
	reports ReportEmitter
	audit   AuditWriter
	locker  lock.Locker
	events  events.Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:   d.Store,
		gate:    NewOrderGate(d.Orders),
		reports: d.Reports,
		audit:   d.Audit,
		locker:  d.Locker,
		events:  d.Events,
		log:     d.Log,
		now:     time.Now,
	}
	if s.locker == nil {
		s.locker = lock.NopLocker{}
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

type OpenInput struct {
	BranchID      uint
	OpeningAmount decimal.Decimal
	OpenedBy      string
}

func (s *Service) Open(ctx context.Context, in OpenInput) (*models.CashSession, error) {
	if in.BranchID == 0 {
		return nil, validationError("branch_id obrigatório")
	}
	if in.OpeningAmount.IsNegative() {
		return nil, validationError("troco inicial não pode ser negativo")
	}
	amount, err := models.NormalizeMoney(in.OpeningAmount)
	if err != nil {
		return nil, validationError("troco inicial: " + err.Error())
	}
	in.OpeningAmount = amount

	now := s.now().UTC()
	session := &models.CashSession{
		ID:            uuid.New(),
		BranchID:      in.BranchID,
		OpeningAmount: in.OpeningAmount,
		OpenedAt:      now,
		OpenedBy:      in.OpenedBy,
	}

	var opening *models.CashMovement
	if in.OpeningAmount.IsPositive() {
		opening = &models.CashMovement{
			Type:        models.MovementOpening,
			Method:      models.CashMethodCash,
			Amount:      in.OpeningAmount,
			Description: "Troco inicial",
			CreatedBy:   in.OpenedBy,
			CreatedAt:   now,
		}
	}

	if err := s.store.Create(ctx, session, opening); err != nil {
		return nil, err
	}

	s.writeAudit(ctx, audit.Entry{
		BranchID:    &session.BranchID,
		Actor:       in.OpenedBy,
		EntityType:  "cash_session",
		EntityID:    session.ID.String(),
		Action:      models.AuditActionOpen,
		Description: "Caixa aberto com troco de " + report.FormatBRL(session.OpeningAmount),
		Metadata:    map[string]string{"opening_amount": session.OpeningAmount.StringFixed(2)},
	})
	return session, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, scope *uint) (*models.CashSession, error) {
	return s.store.Get(ctx, id, scope)
}

func (s *Service) List(ctx context.Context, scope *uint, status models.SessionStatus) ([]models.CashSession, error) {
	return s.store.List(ctx, scope, status)
}

func (s *Service) RecordCount(ctx context.Context, id uuid.UUID, scope *uint, counted decimal.Decimal, actor string) (*models.CashSession, error) {
	if counted.IsNegative() {
		return nil, validationError("valor contado não pode ser negativo")
	}
	counted, err := models.NormalizeMoney(counted)
	if err != nil {
		return nil, validationError("valor contado: " + err.Error())
	}

	session, err := s.store.SetCountedAmount(ctx, id, scope, counted)
	if err != nil {
		return nil, err
	}

	s.writeAudit(ctx, audit.Entry{
		BranchID:    &session.BranchID,
		Actor:       actor,
		EntityType:  "cash_session",
		EntityID:    session.ID.String(),
		Action:      models.AuditActionCount,
		Description: "Contagem registrada: " + report.FormatBRL(counted),
		Metadata:    map[string]string{"counted_amount": counted.StringFixed(2)},
	})
	return session, nil
}

type CloseInput struct {
	SessionID uuid.UUID
	ClosedBy  string
	Scope     *uint
}

type CloseResult struct {
	Session *models.CashSession
	Totals  Reconciliation
	Report  *report.Result // nil quando o relatório falhou
}

// Close executa, em sequência: trava distribuída (se houver), OrderGate,
// cálculo e gravação atômica, relatório, auditoria e evento. Um erro de
// relatório é devolvido junto com o resultado: o caixa já está fechado e o
// relatório pode ser reemitido depois.
func (s *Service) Close(ctx context.Context, in CloseInput) (*CloseResult, error) {
	in.ClosedBy = strings.TrimSpace(in.ClosedBy)
	if in.SessionID == uuid.Nil {
		return nil, validationError("session_id obrigatório")
	}
	if in.ClosedBy == "" {
		return nil, validationError("closed_by obrigatório")
	}

	release, ok, err := s.locker.Acquire(ctx, "cash-session:close:"+in.SessionID.String(), closeLockTTL)
	if err != nil {
		return nil, fmt.Errorf("trava de fechamento: %w", err)
	}
	if !ok {
		return nil, ErrCloseInProgress
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("close lock release failed", zap.String("session_id", in.SessionID.String()), zap.Error(err))
		}
	}()

	session, err := s.store.Get(ctx, in.SessionID, in.Scope)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, ErrAlreadyClosed
	}

	if err := s.gate.Check(ctx, session.BranchID); err != nil {
		return nil, err
	}

	closed, totals, err := s.store.Close(ctx, in.SessionID, in.Scope, CloseUpdate{
		ClosedBy: in.ClosedBy,
		ClosedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("session_id", closed.ID.String()), zap.Uint("branch_id", closed.BranchID))
	log.Info("cash session closed",
		zap.String("closing_amount", totals.ClosingAmount.StringFixed(2)),
		zap.String("difference", totals.Difference.StringFixed(2)),
	)

	result := &CloseResult{Session: closed, Totals: totals}

	res, reportErr := s.reports.Emit(ctx, summaryOf(closed, totals))
	if reportErr != nil {
		log.Error("close report failed", zap.Error(reportErr))
	} else {
		result.Report = res
	}

	meta := map[string]string{
		"closing_amount": totals.ClosingAmount.StringFixed(2),
		"counted_amount": totals.CountedAmount.StringFixed(2),
		"difference":     totals.Difference.StringFixed(2),
	}
	if res != nil {
		meta["report_url"] = res.URL
		meta["report_key"] = res.Key
	} else {
		meta["report_error"] = reportErr.Error()
	}
	s.writeAudit(ctx, audit.Entry{
		BranchID:    &closed.BranchID,
		Actor:       in.ClosedBy,
		EntityType:  "cash_session",
		EntityID:    closed.ID.String(),
		Action:      models.AuditActionClose,
		Description: "Caixa fechado. Diferença: " + report.FormatBRL(totals.Difference),
		Metadata:    meta,
	})

	s.publishClosed(ctx, closed, totals, result.Report)

	if reportErr != nil {
		return result, fmt.Errorf("%w: %v", ErrReport, reportErr)
	}
	return result, nil
}

// RegenerateReport reemite o relatório de um caixa fechado na mesma chave,
// com um novo link assinado.
func (s *Service) RegenerateReport(ctx context.Context, id uuid.UUID, scope *uint, actor string) (*report.Result, error) {
	session, err := s.store.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	if !session.IsClosed() {
		return nil, validationError("o caixa ainda está aberto")
	}

	movs, err := s.store.Movements(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ler movimentos: %w", err)
	}
	totals := Reconcile(movs, session.CountedAmount)
	// o valor gravado no fechamento prevalece
	if session.ClosingAmount.Valid {
		totals.ClosingAmount = session.ClosingAmount.Decimal
	}
	if session.Difference.Valid {
		totals.Difference = session.Difference.Decimal
	}

	res, err := s.reports.Emit(ctx, summaryOf(session, totals))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReport, err)
	}

	s.writeAudit(ctx, audit.Entry{
		BranchID:    &session.BranchID,
		Actor:       actor,
		EntityType:  "cash_session",
		EntityID:    session.ID.String(),
		Action:      models.AuditActionReport,
		Description: "Relatório de fechamento reemitido",
		Metadata:    map[string]string{"report_url": res.URL, "report_key": res.Key},
	})
	return res, nil
}

func (s *Service) writeAudit(ctx context.Context, e audit.Entry) {
	if err := s.audit.Write(ctx, e); err != nil {
		s.log.Warn("audit write failed, queued for retry",
			zap.String("entity_id", e.EntityID),
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
	}
}

func (s *Service) publishClosed(ctx context.Context, cs *models.CashSession, t Reconciliation, res *report.Result) {
	ev := events.SessionClosed{
		SessionID:     cs.ID.String(),
		BranchID:      cs.BranchID,
		ClosedBy:      deref(cs.ClosedBy),
		ClosedAt:      cs.ClosedAt.Format(time.RFC3339),
		ClosingAmount: t.ClosingAmount.StringFixed(2),
		CountedAmount: t.CountedAmount.StringFixed(2),
		Difference:    t.Difference.StringFixed(2),
	}
	if res != nil {
		ev.ReportURL = res.URL
	}
	if err := s.events.PublishSessionClosed(ctx, ev); err != nil {
		s.log.Warn("publish cash_session.closed failed", zap.String("session_id", ev.SessionID), zap.Error(err))
	}
}

func summaryOf(cs *models.CashSession, t Reconciliation) report.Summary {
	sum := report.Summary{
		SessionID:     cs.ID,
		BranchID:      cs.BranchID,
		OpenedAt:      cs.OpenedAt,
		ClosedBy:      deref(cs.ClosedBy),
		OpeningAmount: cs.OpeningAmount,
		ClosingAmount: t.ClosingAmount,
		CountedAmount: t.CountedAmount,
		Difference:    t.Difference,
		MovementCount: t.MovementCount,
		TotalsByType:  t.TotalsByType,
	}
	if cs.ClosedAt != nil {
		sum.ClosedAt = *cs.ClosedAt
	}
	return sum
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
