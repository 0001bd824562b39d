// Package state persists the alert baseline across process lifetimes. The
// engine is invoked freshly each cycle, so the baseline must survive
// restarts; any backend satisfies the contract as long as Load/Save
// round-trip exactly and Save commits atomically.
package state

import (
	"context"
	"encoding/json"
	"errors"

	"pattern-alerts/internal/alert"
)

// ErrUnavailable wraps backend failures so callers can treat every
// persistence problem uniformly: degrade on read, surface on write.
var ErrUnavailable = errors.New("state: backend unavailable")

// Store loads and saves the alert state for one instrument.
//
// Load returns the empty first-run state when no record exists or the
// stored record cannot be decoded; corruption must reset the baseline, not
// crash the cycle. Save replaces the record atomically.
type Store interface {
	Load(ctx context.Context, instrument string) (alert.State, error)
	Save(ctx context.Context, st alert.State) error
}

func encode(st alert.State) ([]byte, error) {
	return json.Marshal(st)
}

// decode parses a stored document, falling back to the first-run state on
// any corruption.
func decode(raw []byte, instrument string) (alert.State, bool) {
	var st alert.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return alert.NewState(instrument), false
	}
	if st.Instrument == "" {
		st.Instrument = instrument
	}
	return st, true
}
