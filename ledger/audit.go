/*
audit.go - Periodic wallet drift audit

PURPOSE:
  Walks every wallet and compares it to Project(ledger). Reads already
  self-heal, but wallets nobody reads can drift unnoticed; this job
  surfaces them.

DESIGN:
  - Implements the scheduler Job interface (Name, Run)
  - One WithTx unit per owner so a heal never races a payment
  - Errors for one owner are logged and counted, the run continues
  - AutoHeal=false only reports

SEE ALSO:
  - wallet.go: Read-path healing
  - scheduler/scheduler.go: Cron wrapper that runs this job
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hosthub/owner-ledger/metrics"
)

// DriftReport is the outcome of one audit run.
type DriftReport struct {
	Checked  int
	Drifted  []OwnerID
	Healed   int
	Failed   int
	Duration time.Duration
}

type DriftAuditor struct {
	Ledger   *Ledger
	AutoHeal bool
	Timeout  time.Duration
	Log      zerolog.Logger
}

func NewDriftAuditor(l *Ledger, autoHeal bool, log zerolog.Logger) *DriftAuditor {
	return &DriftAuditor{
		Ledger:   l,
		AutoHeal: autoHeal,
		Timeout:  5 * time.Minute,
		Log:      log.With().Str("component", "drift_audit").Logger(),
	}
}

func (a *DriftAuditor) Name() string { return "wallet-drift-audit" }

// Run satisfies the scheduler Job interface.
func (a *DriftAuditor) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Timeout)
	defer cancel()

	report, err := a.Audit(ctx)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("drift audit: %d owners failed", report.Failed)
	}
	return nil
}

// Audit checks every wallet once.
func (a *DriftAuditor) Audit(ctx context.Context) (*DriftReport, error) {
	start := time.Now()

	wallets, err := a.Ledger.Store.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	report := &DriftReport{}
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		drifted, healed, err := a.check(ctx, w.OwnerID)
		report.Checked++
		if err != nil {
			report.Failed++
			a.Log.Error().Err(err).Str("owner_id", string(w.OwnerID)).Msg("Drift check failed")
			continue
		}
		if drifted {
			report.Drifted = append(report.Drifted, w.OwnerID)
			metrics.RecordWalletDrift()
		}
		if healed {
			report.Healed++
			metrics.RecordWalletHealed("audit")
		}
	}

	report.Duration = time.Since(start)
	if len(report.Drifted) > 0 || report.Failed > 0 {
		a.Log.Warn().
			Int("checked", report.Checked).
			Int("drifted", len(report.Drifted)).
			Int("healed", report.Healed).
			Int("failed", report.Failed).
			Dur("duration", report.Duration).
			Msg("Drift audit completed with findings")
	} else {
		a.Log.Info().Int("checked", report.Checked).Dur("duration", report.Duration).Msg("Drift audit clean")
	}
	return report, nil
}

func (a *DriftAuditor) check(ctx context.Context, ownerID OwnerID) (drifted, healed bool, err error) {
	err = a.Ledger.Store.WithTx(ctx, ownerID, func(s Store) error {
		wallet, err := s.GetWallet(ctx, ownerID)
		if err != nil || wallet == nil {
			return err
		}

		txs, err := s.ListTransactions(ctx, ownerID)
		if err != nil {
			return err
		}

		p := Project(txs)
		if p.Matches(*wallet) {
			return nil
		}
		drifted = true

		a.Log.Warn().
			Str("owner_id", string(ownerID)).
			Str("stored_balance", wallet.CurrentBalance.StringFixed(2)).
			Str("ledger_balance", p.Balance.StringFixed(2)).
			Str("stored_commissions_payable", wallet.CommissionsPayable.StringFixed(2)).
			Str("ledger_commissions_payable", p.CommissionsPayable.StringFixed(2)).
			Msg("Wallet drift")

		if !a.AutoHeal {
			return nil
		}
		wallet.CurrentBalance = p.Balance
		wallet.CommissionsPayable = p.CommissionsPayable
		if err := a.Ledger.saveWallet(ctx, s, wallet); err != nil {
			return err
		}
		healed = true
		return nil
	})
	return drifted, healed, err
}
