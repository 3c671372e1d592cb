package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pdv-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Entry struct {
	BranchID    *uint
	Actor       string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Metadata    any
}

type Filter struct {
	BranchID   *uint
	EntityType string
	EntityID   string
	Action     string
	Limit      int
}

// Store é a tabela append-only de auditoria.
type Store interface {
	Append(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, f Filter) ([]models.AuditLog, error)
}

type gormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Append(ctx context.Context, log *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

func (s *gormStore) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.BranchID != nil {
		q = q.Where("branch_id = ?", *f.BranchID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&logs).Error
	return logs, err
}

type pendingEntry struct {
	log      models.AuditLog
	attempts int
}

// DefaultMaxPending limita a fila em memória enquanto o banco está fora.
const DefaultMaxPending = 10000

// Recorder grava a auditoria. Uma falha nunca derruba a operação de negócio:
// a entrada vai para uma fila em memória e Flush tenta de novo. maxAttempts
// conta todas as tentativas, inclusive a primeira feita em Write.
type Recorder struct {
	store       Store
	log         *zap.Logger
	interval    time.Duration
	maxAttempts int
	maxPending  int

	mu      sync.Mutex
	pending []pendingEntry
}

func NewRecorder(store Store, log *zap.Logger, interval time.Duration, maxAttempts int) *Recorder {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Recorder{
		store:       store,
		log:         log,
		interval:    interval,
		maxAttempts: maxAttempts,
		maxPending:  DefaultMaxPending,
	}
}

// Write grava a entrada. Em caso de erro a entrada fica pendente para retry e
// o erro é devolvido só para o chamador registrar.
func (r *Recorder) Write(ctx context.Context, e Entry) error {
	row, err := buildLog(e)
	if err != nil {
		return err
	}

	if err := r.store.Append(ctx, &row); err != nil {
		r.retryOrDrop(pendingEntry{log: row, attempts: 1}, err)
		return fmt.Errorf("auditoria não gravada: %w", err)
	}
	return nil
}

func (r *Recorder) List(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	return r.store.List(ctx, f)
}

// Pending devolve quantas entradas aguardam nova tentativa.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush tenta gravar de novo tudo o que está pendente.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, p := range batch {
		row := p.log
		if err := r.store.Append(ctx, &row); err != nil {
			p.attempts++
			r.retryOrDrop(p, err)
			continue
		}
		r.log.Info("audit entry recovered",
			zap.String("action", string(p.log.Action)),
			zap.String("entity_id", p.log.EntityID))
	}
}

// Run chama Flush a cada intervalo até o contexto ser cancelado.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// retryOrDrop devolve a entrada para a fila se ainda restam tentativas e
// houver espaço; senão descarta com log de erro.
func (r *Recorder) retryOrDrop(p pendingEntry, cause error) {
	if p.attempts < r.maxAttempts && r.enqueue(p) {
		return
	}
	r.log.Error("audit entry dropped",
		zap.String("action", string(p.log.Action)),
		zap.String("entity_type", p.log.EntityType),
		zap.String("entity_id", p.log.EntityID),
		zap.Int("attempts", p.attempts),
		zap.Int("pending", r.Pending()),
		zap.Error(cause))
}

func (r *Recorder) enqueue(p pendingEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) >= r.maxPending {
		return false
	}
	r.pending = append(r.pending, p)
	return true
}

func buildLog(e Entry) (models.AuditLog, error) {
	// jsonb não aceita string vazia, "null" é o valor neutro
	metadata := "null"
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return models.AuditLog{}, fmt.Errorf("metadata da auditoria: %w", err)
		}
		metadata = string(b)
	}

	return models.AuditLog{
		CreatedAt:   time.Now(),
		BranchID:    e.BranchID,
		Actor:       e.Actor,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		Description: e.Description,
		Metadata:    metadata,
	}, nil
}
