// Package trend projects a daily earning rate from balance changes between
// consecutive poll cycles.
package trend

import (
	"time"

	"github.com/bardlex/ducomon/internal/snapshot"
)

const day = 24 * time.Hour

// State is the only data carried from one cycle to the next. A zero PrevTime
// means no cycle has been committed yet.
type State struct {
	PrevBalance float64
	PrevTime    time.Time
}

// Trend is the projection for one cycle.
type Trend struct {
	Delta     float64       `json:"delta"`
	Elapsed   time.Duration `json:"elapsed"`
	DailyRate float64       `json:"daily_rate"`
	First     bool          `json:"first"`
}

// Tracker owns the cross-cycle State. It is not safe for concurrent use.
type Tracker struct {
	state State
}

// NewTracker returns a tracker with an unset previous observation.
func NewTracker() *Tracker {
	return &Tracker{}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	return t.state
}

// Project computes the trend of snap against the last committed observation
// without changing it.
func (t *Tracker) Project(snap *snapshot.AccountSnapshot) Trend {
	tr := Trend{
		Delta: snap.Balance - t.state.PrevBalance,
		First: t.state.PrevTime.IsZero(),
	}
	if tr.First {
		return tr
	}

	tr.Elapsed = snap.CapturedAt.Sub(t.state.PrevTime)
	if tr.Elapsed != 0 {
		tr.DailyRate = tr.Delta * (day.Seconds() / tr.Elapsed.Seconds())
	}
	return tr
}

// Commit records snap as the previous observation. It is called after every
// rendered cycle, whether or not the balance moved.
func (t *Tracker) Commit(snap *snapshot.AccountSnapshot) {
	t.state = State{
		PrevBalance: snap.Balance,
		PrevTime:    snap.CapturedAt,
	}
}
