package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"pattern-alerts/internal/alert"
)

const (
	selectAlertStateSQL = `SELECT state FROM alert_state WHERE instrument = $1;`

	upsertAlertStateSQL = `INSERT INTO alert_state (instrument, state, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (instrument) DO UPDATE
    SET state = EXCLUDED.state,
        updated_at = EXCLUDED.updated_at;`
)

// PostgresStore keeps the alert state as one jsonb row per instrument.
// The upsert replaces the whole document, so a commit is atomic.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore wires a pgx pool into a state store.
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "state_postgres").Logger(),
	}
}

// Load reads the stored document. A missing row or an undecodable document
// degrades to the first-run state; only connectivity failures are errors.
func (p *PostgresStore) Load(ctx context.Context, instrument string) (alert.State, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, selectAlertStateSQL, instrument).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return alert.NewState(instrument), nil
	}
	if err != nil {
		return alert.NewState(instrument), fmt.Errorf("%w: select alert state: %v", ErrUnavailable, err)
	}

	st, ok := decode(raw, instrument)
	if !ok {
		p.logger.Warn().Str("instrument", instrument).Msg("stored alert state corrupt; resetting to first-run state")
	}
	return st, nil
}

// Save upserts the state document for the instrument.
func (p *PostgresStore) Save(ctx context.Context, st alert.State) error {
	raw, err := encode(st)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}
	if _, err := p.pool.Exec(ctx, upsertAlertStateSQL, st.Instrument, raw); err != nil {
		return fmt.Errorf("%w: upsert alert state: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
