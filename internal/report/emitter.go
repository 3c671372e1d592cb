package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Result struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// Emitter renderiza, grava e assina o relatório de fechamento.
type Emitter struct {
	store    ObjectStore
	signer   *URLSigner
	renderer Renderer
}

func NewEmitter(store ObjectStore, signer *URLSigner, renderer Renderer) *Emitter {
	return &Emitter{store: store, signer: signer, renderer: renderer}
}

// Key é determinística: reemitir o relatório do mesmo caixa sobrescreve o anterior.
func (e *Emitter) Key(sessionID uuid.UUID) string {
	return fmt.Sprintf("cash-sessions/%s.%s", sessionID, e.renderer.Extension())
}

func (e *Emitter) Emit(ctx context.Context, s Summary) (*Result, error) {
	data, err := e.renderer.Render(s)
	if err != nil {
		return nil, fmt.Errorf("renderizar relatório: %w", err)
	}

	key := e.Key(s.SessionID)
	if err := e.store.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("gravar relatório: %w", err)
	}

	u, exp, err := e.signer.Sign(key)
	if err != nil {
		return nil, fmt.Errorf("assinar link do relatório: %w", err)
	}
	return &Result{Key: key, URL: u, ExpiresAt: exp}, nil
}
