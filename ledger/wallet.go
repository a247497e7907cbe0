package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hosthub/owner-ledger/metrics"
)

// WalletView is a wallet together with the ledger it was checked against.
type WalletView struct {
	Wallet                       Wallet
	Transactions                 []Transaction
	CalculatedBalance            decimal.Decimal
	CalculatedCommissionsPayable decimal.Decimal

	// Healed is true when the stored wallet disagreed with its ledger and
	// was overwritten during this read.
	Healed bool
}

// GetWallet returns the owner's wallet and transactions. If the stored
// wallet has drifted from the ledger it is corrected before returning.
func (l *Ledger) GetWallet(ctx context.Context, ownerID OwnerID) (*WalletView, error) {
	var view *WalletView

	err := l.Store.WithTx(ctx, ownerID, func(s Store) error {
		wallet, err := l.GetOrCreateWallet(ctx, s, ownerID)
		if err != nil {
			return err
		}

		txs, err := s.ListTransactions(ctx, ownerID)
		if err != nil {
			return err
		}

		p := Project(txs)
		view = &WalletView{
			Transactions:                 txs,
			CalculatedBalance:            p.Balance,
			CalculatedCommissionsPayable: p.CommissionsPayable,
		}

		if !p.Matches(*wallet) {
			l.Log.Warn().
				Str("owner_id", string(ownerID)).
				Str("stored_balance", wallet.CurrentBalance.StringFixed(2)).
				Str("ledger_balance", p.Balance.StringFixed(2)).
				Str("stored_commissions_payable", wallet.CommissionsPayable.StringFixed(2)).
				Str("ledger_commissions_payable", p.CommissionsPayable.StringFixed(2)).
				Msg("Wallet drift detected, healing from ledger")

			wallet.CurrentBalance = p.Balance
			wallet.CommissionsPayable = p.CommissionsPayable
			if err := l.saveWallet(ctx, s, wallet); err != nil {
				return err
			}
			view.Healed = true
			metrics.RecordWalletHealed("read")
		}

		view.Wallet = *wallet
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
