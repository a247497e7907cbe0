// Package render turns a statement into a document.
package render

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/hosthub/owner-ledger/ledger"
	"github.com/hosthub/owner-ledger/settings"
)

// Renderer produces document bytes for a statement. A PDF engine plugs in
// here; the default renders plain text.
type Renderer interface {
	Render(ctx context.Context, st ledger.Statement, owner ledger.Owner, b settings.Branding) ([]byte, error)
	ContentType() string
}

type TextRenderer struct{}

func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (TextRenderer) Render(_ context.Context, st ledger.Statement, owner ledger.Owner, b settings.Branding) ([]byte, error) {
	var buf bytes.Buffer
	cur := string(st.DisplayCurrency)

	fmt.Fprintf(&buf, "%s\n", b.CompanyName)
	if b.LogoURL != "" {
		fmt.Fprintf(&buf, "%s\n", b.LogoURL)
	}
	fmt.Fprintf(&buf, "\nOWNER STATEMENT %s\n", st.ID)
	fmt.Fprintf(&buf, "Owner:  %s (%s)\n", owner.Name, owner.ID)
	fmt.Fprintf(&buf, "Period: %s to %s\n", st.PeriodStart.Format("2006-01-02"), st.PeriodEnd.Format("2006-01-02"))
	fmt.Fprintf(&buf, "Status: %s\n\n", st.Status)

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Date\tType\tDescription\tAmount (%s)\t\n", cur)
	for _, l := range st.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", l.Date.Format("2006-01-02"), l.Type, l.Description, l.Amount.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}

	tw = tabwriter.NewWriter(&buf, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw)
	rows := []struct {
		label string
		value string
	}{
		{"Gross revenue", st.GrossRevenue.StringFixed(2)},
		{"  received by company", st.CompanyRevenue.StringFixed(2)},
		{"  received by owner", st.OwnerRevenue.StringFixed(2)},
		{"Commission", st.CommissionAmount.StringFixed(2)},
		{"Expenses", st.TotalExpenses.StringFixed(2)},
		{"  paid by company", st.CompanyPaidExpenses.StringFixed(2)},
		{"  paid by owner", st.OwnerPaidExpenses.StringFixed(2)},
		{"Net to owner", st.NetToOwner.StringFixed(2)},
		{"Opening balance", st.OpeningBalance.StringFixed(2)},
		{"Closing balance", st.ClosingBalance.StringFixed(2)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s %s\t\n", r.label, r.value, cur)
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, st ledger.Statement, owner ledger.Owner, b settings.Branding) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, st ledger.Statement, owner ledger.Owner, b settings.Branding) ([]byte, error) {
	return f(ctx, st, owner, b)
}

func (RendererFunc) ContentType() string { return "application/octet-stream" }
