package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
)

// SampleRow is one persisted metric observation. The Postgres mirror keeps
// a durable copy of what the in-memory series store holds, so the show and
// export commands can look further back than a single process lifetime.
type SampleRow struct {
	Metric    metric.ID
	SampleTS  time.Time
	Value     decimal.Decimal
	CreatedAt time.Time
}

// AlertRow captures an emitted notification for auditing.
type AlertRow struct {
	ID        int64
	CycleTS   time.Time
	Reason    string
	Deltas    json.RawMessage
	Degraded  bool
	CreatedAt time.Time
}
