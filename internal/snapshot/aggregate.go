package snapshot

import (
	"sort"
	"time"

	"github.com/bardlex/ducomon/internal/duco"
	"github.com/bardlex/ducomon/internal/format"
	"github.com/bardlex/ducomon/pkg/errors"
)

const opAggregate = "aggregate"

type keyedRecord struct {
	key    string
	record MinerRecord
}

// Aggregate builds the snapshot of username from one complete fetch. It does
// not mutate p and returns identical snapshots for identical inputs.
//
// Malformed data yields an ErrorTypeValidation error and no snapshot.
func Aggregate(p *duco.Payloads, username string, capturedAt time.Time) (*AccountSnapshot, error) {
	if p == nil {
		return nil, errors.New(errors.ErrorTypeValidation, opAggregate, "no payloads")
	}

	var matched []keyedRecord
	for key := range p.Miners {
		user, hasUser := p.Miners.Owner(key)
		if !hasUser {
			return nil, errors.New(errors.ErrorTypeValidation, opAggregate, "miner record without User").
				WithContext("key", key)
		}
		if user != username {
			continue
		}

		w, err := p.Miners.Worker(key)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, opAggregate, "undecodable miner record").
				WithContext("key", key)
		}
		rec, err := buildRecord(key, w)
		if err != nil {
			return nil, err
		}
		matched = append(matched, keyedRecord{key: key, record: rec})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.record.Identifier != b.record.Identifier {
			return a.record.Identifier < b.record.Identifier
		}
		return a.key < b.key
	})

	snap := &AccountSnapshot{
		Username:   username,
		Miners:     make([]MinerRecord, 0, len(matched)),
		CapturedAt: capturedAt,
	}
	for _, m := range matched {
		snap.Miners = append(snap.Miners, m.record)
		snap.TotalHashrate += m.record.Hashrate
		snap.TotalAccepted += m.record.Accepted
		snap.TotalSharerate += m.record.Sharerate
	}

	display, err := p.Balances.Lookup(username)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, opAggregate, "undecodable balance").
			WithContext("username", username)
	}
	snap.BalanceDisplay = display
	balance, err := format.ParseBalance(display)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, opAggregate, "unparsable balance").
			WithContext("username", username)
	}
	snap.Balance = balance

	price, err := p.Pool.DucoPrice.Float64()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, opAggregate, "unparsable pool price")
	}
	snap.PriceUSD = price

	return snap, nil
}

func buildRecord(key string, w duco.WorkerPayload) (MinerRecord, error) {
	invalid := func(msg string, err error) (MinerRecord, error) {
		var se *errors.ServiceError
		if err != nil {
			se = errors.Wrap(err, errors.ErrorTypeValidation, opAggregate, msg)
		} else {
			se = errors.New(errors.ErrorTypeValidation, opAggregate, msg)
		}
		return MinerRecord{}, se.WithContext("key", key)
	}

	switch {
	case w.Identifier == nil:
		return invalid("miner record without Identifier", nil)
	case w.Software == nil:
		return invalid("miner record without Software", nil)
	case w.Algorithm == nil:
		return invalid("miner record without Algorithm", nil)
	}

	rec := MinerRecord{
		Identifier: *w.Identifier,
		Software:   *w.Software,
		Algorithm:  *w.Algorithm,
	}

	fields := []struct {
		name string
		src  duco.Number
		dst  *int64
	}{
		{"Hashrate", w.Hashrate, &rec.Hashrate},
		{"Accepted", w.Accepted, &rec.Accepted},
		{"Rejected", w.Rejected, &rec.Rejected},
		{"Sharerate", w.Sharerate, &rec.ReportedSharerate},
		{"Diff", w.Diff, &rec.Difficulty},
	}
	for _, f := range fields {
		v, err := f.src.Int64()
		if err != nil {
			return invalid("invalid "+f.name, err)
		}
		*f.dst = v
	}

	rec.Sharerate = max(rec.ReportedSharerate, rec.Accepted+rec.Rejected)
	return rec, nil
}
