package dashboard

import (
	"strconv"

	"github.com/bardlex/ducomon/internal/format"
	"github.com/bardlex/ducomon/internal/snapshot"
	"github.com/bardlex/ducomon/internal/trend"
)

// Column headers of the two tables.
var (
	SummaryHeaders = []string{"Balance", "Total miners", "Total hashrate", "Total success", "Daily profit"}
	MinerHeaders   = []string{"ID", "Software", "Algo", "Success", "Hashrate", "Diff"}
)

// SummaryRow is the single row of the account summary table.
type SummaryRow struct {
	Balance       string
	TotalMiners   string
	TotalHashrate string
	TotalSuccess  string
	DailyProfit   string
}

// Cells returns the row in SummaryHeaders order.
func (r SummaryRow) Cells() []string {
	return []string{r.Balance, r.TotalMiners, r.TotalHashrate, r.TotalSuccess, r.DailyProfit}
}

// MinerRow is one row of the miners table.
type MinerRow struct {
	ID       string
	Software string
	Algo     string
	Success  string
	Hashrate string
	Diff     string
}

// Cells returns the row in MinerHeaders order.
func (r MinerRow) Cells() []string {
	return []string{r.ID, r.Software, r.Algo, r.Success, r.Hashrate, r.Diff}
}

// View is everything one cycle puts on screen, already formatted.
type View struct {
	Summary SummaryRow
	Miners  []MinerRow
}

// Present formats a snapshot and its trend for display. It cannot fail.
func Present(snap *snapshot.AccountSnapshot, tr trend.Trend, glyph string) View {
	v := View{
		Summary: SummaryRow{
			Balance:       format.Balance(snap.BalanceDisplay, glyph),
			TotalMiners:   strconv.Itoa(len(snap.Miners)),
			TotalHashrate: format.Hashrate(float64(snap.TotalHashrate)),
			TotalSuccess:  snap.Success(),
			DailyProfit:   format.Projection(tr.DailyRate, tr.First, glyph),
		},
		Miners: make([]MinerRow, 0, len(snap.Miners)),
	}

	for _, m := range snap.Miners {
		v.Miners = append(v.Miners, MinerRow{
			ID:       m.Identifier,
			Software: m.Software,
			Algo:     m.Algorithm,
			Success:  m.Success(),
			Hashrate: format.Hashrate(float64(m.Hashrate)),
			Diff:     strconv.FormatInt(m.Difficulty, 10),
		})
	}

	return v
}
