/*
ledger.go - Append-only owner ledger and wallet projection

PURPOSE:
  The ledger is the immutable source of truth for money movement. The
  wallet is a cached projection of it: (currentBalance, commissionsPayable)
  must always equal Project(transactions) for that owner.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. Record() is the only sanctioned way to change a wallet.
  3. Every Record() is followed, in the same unit, by either an incremental
     wallet update or a full resync. Full resync is authoritative.
  4. IDEMPOTENT: Same idempotency key = rejected second write.

SYNC MODES:
  SyncIncremental: wallet += tx deltas. O(1), used by payments and
                   booking reconciliation.
  SyncFull:        wallet = Σ ledger. O(n), used by statement finalization
                   and manual transactions.

CURRENCY:
  Transactions are stored in the wallet currency. Amounts given in another
  currency are converted and rounded to 2 dp before they are appended.

SEE ALSO:
  - payments.go: Commission and balance payments
  - wallet.go: Self-healing wallet view
  - audit.go: Periodic drift detection
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/metrics"
)

// Converter converts an amount between currencies.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to Currency) (decimal.Decimal, error)
}

type SyncMode int

const (
	SyncIncremental SyncMode = iota
	SyncFull
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store     TxStore
	Converter Converter
	Clock     Clock
	Log       zerolog.Logger
}

func NewLedger(store TxStore, converter Converter, log zerolog.Logger) *Ledger {
	return &Ledger{
		Store:     store,
		Converter: converter,
		Clock:     time.Now,
		Log:       log.With().Str("component", "ledger").Logger(),
	}
}

func (l *Ledger) now() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock().UTC()
}

// GetOrCreateWallet returns the owner's wallet, creating it with zero
// balances in the owner's preferred currency if absent.
// Call inside a WithTx unit when the wallet may be created.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, s Store, ownerID OwnerID) (*Wallet, error) {
	w, err := s.GetWallet(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if w != nil {
		return w, nil
	}

	owner, err := s.GetOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}

	now := l.now()
	w = &Wallet{
		ID:                 uuid.NewString(),
		OwnerID:            ownerID,
		Currency:           owner.PreferredCurrency,
		CurrentBalance:     decimal.Zero,
		CommissionsPayable: decimal.Zero,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.SaveWallet(ctx, *w); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	l.Log.Info().Str("owner_id", string(ownerID)).Str("currency", string(w.Currency)).Msg("Wallet created")
	return w, nil
}

// Wallet returns the owner's wallet, creating it inside its own unit if needed.
func (l *Ledger) Wallet(ctx context.Context, ownerID OwnerID) (*Wallet, error) {
	w, err := l.Store.GetWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	err = l.Store.WithTx(ctx, ownerID, func(s Store) error {
		w, err = l.GetOrCreateWallet(ctx, s, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Record appends one transaction and syncs the wallet in the given mode.
// s must be the Store handed to a WithTx unit for tx.OwnerID.
func (l *Ledger) Record(ctx context.Context, s Store, tx Transaction, mode SyncMode) (*Transaction, *Wallet, error) {
	if tx.OwnerID == "" {
		return nil, nil, &ValidationError{Field: "owner_id", Message: "is required"}
	}
	if !tx.Type.Valid() {
		return nil, nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", tx.Type)}
	}

	wallet, err := l.GetOrCreateWallet(ctx, s, tx.OwnerID)
	if err != nil {
		return nil, nil, err
	}

	if tx.IdempotencyKey != "" {
		exists, err := s.TransactionExists(ctx, tx.IdempotencyKey)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			return nil, nil, ErrDuplicateIdempotencyKey
		}
	}

	if err := l.toWalletCurrency(ctx, &tx, wallet.Currency); err != nil {
		return nil, nil, err
	}

	now := l.now()
	if tx.ID == "" {
		tx.ID = TransactionID(uuid.NewString())
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}
	tx.CreatedAt = now
	tx.Amount = Round(tx.Amount)
	tx.CommissionDelta = Round(tx.CommissionDelta)

	if err := s.AppendTransaction(ctx, tx); err != nil {
		return nil, nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	switch mode {
	case SyncFull:
		wallet, err = l.Resync(ctx, s, tx.OwnerID)
		if err != nil {
			return nil, nil, err
		}
	default:
		wallet.Apply(tx)
		if err := l.saveWallet(ctx, s, wallet); err != nil {
			return nil, nil, err
		}
	}

	metrics.RecordLedgerTransaction(string(tx.Type))
	l.Log.Debug().
		Str("owner_id", string(tx.OwnerID)).
		Str("tx_id", string(tx.ID)).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.StringFixed(2)).
		Str("commission_delta", tx.CommissionDelta.StringFixed(2)).
		Msg("Transaction recorded")

	return &tx, wallet, nil
}

// Resync recomputes both wallet fields from the owner's full ledger.
func (l *Ledger) Resync(ctx context.Context, s Store, ownerID OwnerID) (*Wallet, error) {
	wallet, err := l.GetOrCreateWallet(ctx, s, ownerID)
	if err != nil {
		return nil, err
	}

	txs, err := s.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	p := Project(txs)
	wallet.CurrentBalance = p.Balance
	wallet.CommissionsPayable = p.CommissionsPayable
	if err := l.saveWallet(ctx, s, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// Transactions returns the owner's full ledger.
func (l *Ledger) Transactions(ctx context.Context, ownerID OwnerID) ([]Transaction, error) {
	return l.Store.ListTransactions(ctx, ownerID)
}

func (l *Ledger) saveWallet(ctx context.Context, s Store, w *Wallet) error {
	w.Version++
	w.UpdatedAt = l.now()
	if err := s.SaveWallet(ctx, *w); err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// toWalletCurrency converts the transaction's deltas into the wallet currency.
func (l *Ledger) toWalletCurrency(ctx context.Context, tx *Transaction, walletCurrency Currency) error {
	if tx.Currency == "" || tx.Currency == walletCurrency {
		tx.Currency = walletCurrency
		return nil
	}
	if !tx.Currency.Valid() {
		return &ValidationError{Field: "currency", Message: "invalid currency code " + string(tx.Currency), Err: ErrInvalidCurrency}
	}
	if l.Converter == nil {
		return fmt.Errorf("no converter configured for %s -> %s", tx.Currency, walletCurrency)
	}

	amount, err := l.Converter.Convert(ctx, tx.Amount, tx.Currency, walletCurrency)
	if err != nil {
		return err
	}
	delta, err := l.Converter.Convert(ctx, tx.CommissionDelta, tx.Currency, walletCurrency)
	if err != nil {
		return err
	}

	note := fmt.Sprintf("converted from %s %s", tx.Amount.StringFixed(2), tx.Currency)
	if tx.Notes == "" {
		tx.Notes = note
	} else {
		tx.Notes += " (" + note + ")"
	}
	tx.Amount, tx.CommissionDelta, tx.Currency = amount, delta, walletCurrency
	return nil
}
