package statement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/metrics"
	"github.com/hosthub/owner-ledger/notify"
)

// DocumentURL is the placeholder location of a finalized statement's document.
func DocumentURL(id ledger.StatementID) string {
	return "/api/statements/" + string(id) + "/document"
}

// notifyTimeout bounds the post-commit enqueue.
const notifyTimeout = 2 * time.Second

// Finalizer moves statements DRAFT -> FINALIZED. The transition is one-way.
type Finalizer struct {
	Ledger *ledger.Ledger
	Queue  notify.Queue
	Clock  ledger.Clock
	Log    zerolog.Logger
}

func NewFinalizer(l *ledger.Ledger, q notify.Queue, log zerolog.Logger) *Finalizer {
	return &Finalizer{
		Ledger: l,
		Queue:  q,
		Clock:  time.Now,
		Log:    log.With().Str("component", "statement_finalizer").Logger(),
	}
}

// Finalize freezes the statement and posts its net to the owner's ledger
// in one unit:
//
//  1. status FINALIZED, finalizedAt/finalizedBy stamped
//  2. STATEMENT_NET transaction for netToOwner (wallet currency)
//  3. full wallet resync from the ledger
//  4. document URL stamped, statement saved
//
// Any failure leaves nothing behind. The outbound notification is queued
// after commit and its failure is only logged.
func (f *Finalizer) Finalize(ctx context.Context, id ledger.StatementID, actor ledger.UserID) (*ledger.Statement, error) {
	st, err := f.Ledger.Store.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ledger.ErrStatementNotFound
	}
	if st.IsFinalized() {
		return nil, ledger.ErrStatementFinalized
	}

	var (
		finalized *ledger.Statement
		wallet    *ledger.Wallet
	)
	err = f.Ledger.Store.WithTx(ctx, st.OwnerID, func(s ledger.Store) error {
		// Re-read under the owner lock; a concurrent finalize may have won.
		cur, err := s.GetStatement(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return ledger.ErrStatementNotFound
		}
		if cur.IsFinalized() {
			return ledger.ErrStatementFinalized
		}

		now := f.now()
		cur.Status = ledger.StatementFinalized
		cur.FinalizedAt = &now
		cur.FinalizedBy = &actor
		cur.UpdatedAt = now

		_, wallet, err = f.Ledger.Record(ctx, s, ledger.Transaction{
			OwnerID:        cur.OwnerID,
			Type:           ledger.TxStatementNet,
			Amount:         cur.NetToOwner,
			Currency:       cur.DisplayCurrency,
			ReferenceID:    string(cur.ID),
			Notes:          "Statement " + cur.Period().String(),
			Date:           now,
			IdempotencyKey: "statement-net:" + string(cur.ID),
			CreatedBy:      actor,
		}, ledger.SyncFull)
		if err != nil {
			return fmt.Errorf("failed to post statement net: %w", err)
		}

		cur.PDFURL = DocumentURL(cur.ID)
		if err := s.SaveStatement(ctx, *cur); err != nil {
			return fmt.Errorf("failed to save statement: %w", err)
		}
		finalized = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordStatementFinalized()
	f.Log.Info().
		Str("statement_id", string(id)).
		Str("owner_id", string(finalized.OwnerID)).
		Str("net_to_owner", finalized.NetToOwner.StringFixed(2)).
		Str("current_balance", wallet.CurrentBalance.StringFixed(2)).
		Msg("Statement finalized")

	f.notify(ctx, *finalized)
	return finalized, nil
}

func (f *Finalizer) notify(ctx context.Context, st ledger.Statement) {
	if f.Queue == nil {
		return
	}
	msg := notify.NewMessage(
		notify.WithEvent(notify.EventStatementFinalized),
		notify.WithOwner(string(st.OwnerID)),
		notify.WithPayload("statement_id", string(st.ID)),
		notify.WithPayload("period", st.Period().String()),
		notify.WithPayload("net_to_owner", st.NetToOwner.StringFixed(2)),
		notify.WithPayload("currency", string(st.DisplayCurrency)),
		notify.WithPayload("document_url", st.PDFURL),
	)
	// The statement is already committed; a cancelled request must not drop the notice.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := f.Queue.Enqueue(ctx, msg); err != nil {
		f.Log.Warn().Err(err).Str("statement_id", string(st.ID)).Msg("Failed to queue finalization notice")
	}
}

func (f *Finalizer) now() time.Time {
	if f.Clock == nil {
		return time.Now().UTC()
	}
	return f.Clock().UTC()
}
