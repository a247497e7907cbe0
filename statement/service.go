package statement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/render"
	"github.com/hosthub/owner-ledger/settings"
)

// Document is a finalized statement and its rendered bytes. Content is
// nil when rendering failed.
type Document struct {
	Statement   ledger.Statement
	Content     []byte
	ContentType string
}

// Service ties generation, persistence, finalization and rendering together.
type Service struct {
	Store     ledger.TxStore
	Generator *Generator
	Finalizer *Finalizer
	Renderer  render.Renderer
	Settings  *settings.Settings
	Log       zerolog.Logger
}

func NewService(g *Generator, f *Finalizer, r render.Renderer, s *settings.Settings, log zerolog.Logger) *Service {
	return &Service{
		Store:     f.Ledger.Store,
		Generator: g,
		Finalizer: f,
		Renderer:  r,
		Settings:  s,
		Log:       log.With().Str("component", "statements").Logger(),
	}
}

// Preview generates without saving.
func (svc *Service) Preview(ctx context.Context, req Request) (*ledger.Statement, error) {
	return svc.Generator.Generate(ctx, req)
}

// CreateDraft generates and persists a DRAFT.
func (svc *Service) CreateDraft(ctx context.Context, req Request) (*ledger.Statement, error) {
	st, err := svc.Generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := svc.Store.SaveStatement(ctx, *st); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return st, nil
}

// GenerateAll generates drafts for every active owner, persisting them when save is set.
func (svc *Service) GenerateAll(ctx context.Context, start, end time.Time, display ledger.Currency, save bool) ([]ledger.Statement, error) {
	sts, genErr := svc.Generator.GenerateAll(ctx, start, end, display)
	if !save {
		return sts, genErr
	}
	for _, st := range sts {
		if err := svc.Store.SaveStatement(ctx, st); err != nil {
			return nil, fmt.Errorf("failed to save draft for owner %s: %w", st.OwnerID, err)
		}
	}
	return sts, genErr
}

// Regenerate recomputes a stored DRAFT in place against current data.
func (svc *Service) Regenerate(ctx context.Context, id ledger.StatementID) (*ledger.Statement, error) {
	existing, err := svc.Store.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ledger.ErrStatementNotFound
	}
	if existing.IsFinalized() {
		return nil, ledger.ErrStatementFinalized
	}

	var regenerated *ledger.Statement
	err = svc.Store.WithTx(ctx, existing.OwnerID, func(s ledger.Store) error {
		st, err := svc.Generator.generate(ctx, s, Request{
			OwnerID:         existing.OwnerID,
			PeriodStart:     existing.PeriodStart,
			PeriodEnd:       existing.PeriodEnd,
			DisplayCurrency: existing.DisplayCurrency,
		})
		if err != nil {
			return err
		}

		st.ID = existing.ID
		st.CreatedAt = existing.CreatedAt
		for i := range st.Lines {
			st.Lines[i].StatementID = existing.ID
		}
		if err := s.SaveStatement(ctx, *st); err != nil {
			return err
		}
		regenerated = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return regenerated, nil
}

func (svc *Service) Get(ctx context.Context, id ledger.StatementID) (*ledger.Statement, error) {
	st, err := svc.Store.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ledger.ErrStatementNotFound
	}
	return st, nil
}

func (svc *Service) List(ctx context.Context, filter ledger.StatementFilter) ([]ledger.Statement, error) {
	return svc.Store.ListStatements(ctx, filter)
}

// FinalizeDocument finalizes and renders. A render failure is logged and the
// finalized statement is still returned; the financial commit stands.
func (svc *Service) FinalizeDocument(ctx context.Context, id ledger.StatementID, actor ledger.UserID) (*Document, error) {
	st, err := svc.Finalizer.Finalize(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	doc := &Document{Statement: *st}
	content, err := svc.Render(ctx, *st)
	if err != nil {
		svc.Log.Error().Err(err).Str("statement_id", string(id)).Msg("Statement document render failed")
		return doc, nil
	}
	doc.Content = content
	doc.ContentType = svc.Renderer.ContentType()
	return doc, nil
}

// Render renders any stored statement with current branding.
func (svc *Service) Render(ctx context.Context, st ledger.Statement) ([]byte, error) {
	if svc.Renderer == nil {
		return nil, fmt.Errorf("no renderer configured")
	}

	owner, err := svc.Store.GetOwner(ctx, st.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ledger.ErrOwnerNotFound
	}

	branding := settings.DefaultBranding
	if svc.Settings != nil {
		branding = svc.Settings.Branding(ctx)
	}
	return svc.Renderer.Render(ctx, st, *owner, branding)
}
