package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pattern-alerts/internal/alert"
)

// RedisStore keeps the alert state as one JSON value per instrument. SET is
// atomic on the server side, which satisfies the commit contract.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    zerolog.Logger
}

// NewRedisStore wires a redis client into a state store. keyPrefix defaults
// to "patternwatcher:alert_state".
func NewRedisStore(client *redis.Client, keyPrefix string, logger zerolog.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "patternwatcher:alert_state"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With().Str("component", "state_redis").Logger(),
	}
}

func (r *RedisStore) key(instrument string) string {
	return r.keyPrefix + ":" + instrument
}

// Load reads the stored document, degrading to the first-run state when the
// key is absent or holds an undecodable value.
func (r *RedisStore) Load(ctx context.Context, instrument string) (alert.State, error) {
	raw, err := r.client.Get(ctx, r.key(instrument)).Bytes()
	if errors.Is(err, redis.Nil) {
		return alert.NewState(instrument), nil
	}
	if err != nil {
		return alert.NewState(instrument), fmt.Errorf("%w: get alert state: %v", ErrUnavailable, err)
	}

	st, ok := decode(raw, instrument)
	if !ok {
		r.logger.Warn().Str("instrument", instrument).Msg("stored alert state corrupt; resetting to first-run state")
	}
	return st, nil
}

// Save replaces the state value for the instrument.
func (r *RedisStore) Save(ctx context.Context, st alert.State) error {
	raw, err := encode(st)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}
	if err := r.client.Set(ctx, r.key(st.Instrument), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: set alert state: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
