// Package snapshot turns raw pool payloads into the per-account view the
// dashboard renders and exports.
package snapshot

import (
	"fmt"
	"time"
)

// MinerRecord is one worker belonging to the monitored account.
type MinerRecord struct {
	Identifier string `json:"identifier"`
	Software   string `json:"software"`
	Algorithm  string `json:"algorithm"`
	Difficulty int64  `json:"difficulty"`
	Hashrate   int64  `json:"hashrate"`
	Accepted   int64  `json:"accepted"`
	Rejected   int64  `json:"rejected"`

	// ReportedSharerate is what the pool sent; Sharerate is the corrected
	// value that is never below Accepted+Rejected.
	ReportedSharerate int64 `json:"reported_sharerate"`
	Sharerate         int64 `json:"sharerate"`
}

// Success returns "accepted/sharerate", unreduced.
func (m MinerRecord) Success() string {
	return fmt.Sprintf("%d/%d", m.Accepted, m.Sharerate)
}

// AccountSnapshot is the aggregated state of one account for one cycle.
type AccountSnapshot struct {
	Username       string        `json:"username"`
	BalanceDisplay string        `json:"balance_display"`
	Balance        float64       `json:"balance"`
	Miners         []MinerRecord `json:"miners"`
	TotalHashrate  int64         `json:"total_hashrate"`
	TotalAccepted  int64         `json:"total_accepted"`
	TotalSharerate int64         `json:"total_sharerate"`
	PriceUSD       float64       `json:"price_usd"`
	CapturedAt     time.Time     `json:"captured_at"`
}

// SuccessPercent is floor(100*accepted/sharerate) over all miners, or 0 when
// no shares were counted.
func (s *AccountSnapshot) SuccessPercent() int64 {
	if s.TotalSharerate == 0 {
		return 0
	}
	return 100 * s.TotalAccepted / s.TotalSharerate
}

// Success returns the account success string, e.g. "90% (45/50)".
func (s *AccountSnapshot) Success() string {
	return fmt.Sprintf("%d%% (%d/%d)", s.SuccessPercent(), s.TotalAccepted, s.TotalSharerate)
}
