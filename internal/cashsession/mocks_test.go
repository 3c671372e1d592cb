package cashsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"pdv-backend/internal/audit"
	"pdv-backend/internal/events"
	"pdv-backend/internal/lock"
	"pdv-backend/internal/models"
	"pdv-backend/internal/report"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore imita o Repository em memória, com as mesmas regras de estado.
type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.CashSession
	movements map[uuid.UUID][]models.CashMovement
	closeErr  error
	closes    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  map[uuid.UUID]*models.CashSession{},
		movements: map[uuid.UUID][]models.CashMovement{},
	}
}

func (m *memStore) add(branch uint, amounts ...string) *models.CashSession {
	s := &models.CashSession{ID: uuid.New(), BranchID: branch, OpenedAt: time.Now()}
	m.sessions[s.ID] = s
	for _, a := range amounts {
		d := decimal.RequireFromString(a)
		typ := models.MovementSale
		if d.IsNegative() {
			typ = models.MovementRefund
		}
		m.movements[s.ID] = append(m.movements[s.ID], models.CashMovement{
			ID: uuid.New(), CashSessionID: s.ID, Type: typ, Amount: d,
		})
	}
	return s
}

func (m *memStore) Create(_ context.Context, s *models.CashSession, opening *models.CashMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.sessions {
		if other.BranchID == s.BranchID && !other.IsClosed() {
			return ErrAlreadyOpen
		}
	}
	m.sessions[s.ID] = s
	if opening != nil {
		opening.CashSessionID = s.ID
		m.movements[s.ID] = append(m.movements[s.ID], *opening)
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID, scope *uint) (*models.CashSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || (scope != nil && s.BranchID != *scope) {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) List(_ context.Context, scope *uint, status models.SessionStatus) ([]models.CashSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CashSession
	for _, s := range m.sessions {
		if scope != nil && s.BranchID != *scope {
			continue
		}
		if status != "" && s.Status() != status {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) Movements(_ context.Context, id uuid.UUID) ([]models.CashMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.movements[id], nil
}

func (m *memStore) SetCountedAmount(ctx context.Context, id uuid.UUID, scope *uint, amount decimal.Decimal) (*models.CashSession, error) {
	if _, err := m.Get(ctx, id, scope); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s.IsClosed() {
		return nil, ErrAlreadyClosed
	}
	s.CountedAmount = decimal.NewNullDecimal(amount)
	cp := *s
	return &cp, nil
}

func (m *memStore) Close(ctx context.Context, id uuid.UUID, scope *uint, upd CloseUpdate) (*models.CashSession, Reconciliation, error) {
	if _, err := m.Get(ctx, id, scope); err != nil {
		return nil, Reconciliation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return nil, Reconciliation{}, m.closeErr
	}
	s := m.sessions[id]
	if s.IsClosed() {
		return nil, Reconciliation{}, ErrAlreadyClosed
	}
	m.closes++

	rec := Reconcile(m.movements[id], s.CountedAmount)
	s.ClosingAmount = decimal.NewNullDecimal(rec.ClosingAmount)
	s.CountedAmount = decimal.NewNullDecimal(rec.CountedAmount)
	s.Difference = decimal.NewNullDecimal(rec.Difference)
	at, by := upd.ClosedAt, upd.ClosedBy
	s.ClosedAt, s.ClosedBy = &at, &by
	cp := *s
	return &cp, rec, nil
}

type orderCounter struct {
	n   int64
	err error
}

func (o *orderCounter) CountOpen(context.Context, uint) (int64, error) { return o.n, o.err }

type fakeEmitter struct {
	err       error
	summaries []report.Summary
}

func (f *fakeEmitter) Emit(_ context.Context, s report.Summary) (*report.Result, error) {
	f.summaries = append(f.summaries, s)
	if f.err != nil {
		return nil, f.err
	}
	key := "cash-sessions/" + s.SessionID.String() + ".txt"
	return &report.Result{
		Key:       key,
		URL:       "http://pdv.test/api/reports/" + key + "?token=t",
		ExpiresAt: time.Date(2026, 1, 2, 13, 0, 0, 0, time.UTC),
	}, nil
}

type auditSpy struct {
	err     error
	entries []audit.Entry
}

func (a *auditSpy) Write(_ context.Context, e audit.Entry) error {
	a.entries = append(a.entries, e)
	return a.err
}

type publisherSpy struct {
	err    error
	events []events.SessionClosed
}

func (p *publisherSpy) PublishSessionClosed(_ context.Context, ev events.SessionClosed) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *publisherSpy) Close() error { return nil }

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (lock.ReleaseFunc, bool, error) {
	return nil, false, nil
}

var errDown = errors.New("connection refused")

type fixture struct {
	store   *memStore
	orders  *orderCounter
	reports *fakeEmitter
	audit   *auditSpy
	events  *publisherSpy
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		orders:  &orderCounter{},
		reports: &fakeEmitter{},
		audit:   &auditSpy{},
		events:  &publisherSpy{},
	}
	f.svc = NewService(Deps{
		Store:   f.store,
		Orders:  f.orders,
		Reports: f.reports,
		Audit:   f.audit,
		Events:  f.events,
	})
	f.svc.now = func() time.Time { return time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC) }
	return f
}
