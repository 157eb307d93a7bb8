package duco

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultBalance is the balance display used for accounts missing from the
// balance table.
const DefaultBalance = "0 DUCO"

// Payloads holds one complete fetch of the three pool resources. It is only
// ever returned whole; a failed fetch yields no Payloads at all.
type Payloads struct {
	Miners   MinerDirectory
	Balances BalanceTable
	Pool     PoolInfo
}

// MinerDirectory is miners.json: every connected worker of the pool keyed by
// an opaque connection key. Records stay raw until a caller picks the ones it
// wants, so odd field types in another account's record never fail a fetch.
type MinerDirectory map[string]json.RawMessage

// Owner reads only the User field of the record at key. hasUser is false when
// the record is an object without a User. Records that are not objects, or
// whose User is not a string, report an empty user and cannot match anyone.
func (d MinerDirectory) Owner(key string) (user string, hasUser bool) {
	raw := bytes.TrimSpace(d[key])
	if !bytes.HasPrefix(raw, []byte("{")) {
		return "", true
	}

	var head struct {
		User json.RawMessage `json:"User"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", true
	}
	if len(head.User) == 0 || string(head.User) == "null" {
		return "", false
	}
	if err := json.Unmarshal(head.User, &user); err != nil {
		return "", true
	}
	return user, true
}

// Worker fully decodes the record at key.
func (d MinerDirectory) Worker(key string) (WorkerPayload, error) {
	var w WorkerPayload
	if err := json.Unmarshal(d[key], &w); err != nil {
		return WorkerPayload{}, err
	}
	return w, nil
}

// WorkerPayload is one entry of the miner directory. String fields are
// pointers so a missing field can be told apart from an empty one; numeric
// fields default to zero when missing.
type WorkerPayload struct {
	User       *string `json:"User"`
	Identifier *string `json:"Identifier"`
	Software   *string `json:"Software"`
	Algorithm  *string `json:"Algorithm"`

	Hashrate  Number `json:"Hashrate"`
	Accepted  Number `json:"Accepted"`
	Rejected  Number `json:"Rejected"`
	Sharerate Number `json:"Sharerate"`
	Diff      Number `json:"Diff"`
}

// BalanceTable is balances.json: username to balance display ("12.5 DUCO").
// Entries are decoded on lookup so only the monitored account has to be
// well formed.
type BalanceTable map[string]json.RawMessage

// Lookup returns the balance display for username, or DefaultBalance when the
// account is absent or null.
func (b BalanceTable) Lookup(username string) (string, error) {
	raw, ok := b[username]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return DefaultBalance, nil
	}

	var display string
	if err := json.Unmarshal(raw, &display); err != nil {
		return "", fmt.Errorf("balance of %q: %w", username, err)
	}
	return display, nil
}

// PoolInfo is the subset of api.json the dashboard reads.
type PoolInfo struct {
	DucoPrice Number `json:"Duco price"`
}

// Number is a JSON number, or a string holding one, as the pool emits both.
// The zero value (field absent) reads as 0.
type Number string

// UnmarshalJSON accepts a JSON number, a quoted number or null.
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*n = ""
		return nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return err
		}
		*n = Number(num)
		return nil
	}
}

// Float64 parses the number; an absent value is 0.
func (n Number) Float64() (float64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(n))
	}
	return v, nil
}

// Int64 parses the number and truncates any fraction toward zero.
func (n Number) Int64() (int64, error) {
	v, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("number %q out of range", string(n))
	}
	return int64(v), nil
}
