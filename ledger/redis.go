package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"video-agent/config"
	"video-agent/logging"
	"video-agent/types"
)

// Redis keeps each run as a hash at <prefix><run_id>
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server
func NewRedis(ctx context.Context, cfg config.LedgerConfig, password string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     password,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = "video-agent:run:"
	}
	log := logging.WithComponent("ledger")
	log.Info().
		Str("addr", cfg.RedisAddr).
		Int("db", cfg.RedisDB).
		Msg("connected to redis ledger")
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) AppendOrUpdate(ctx context.Context, runID string, rec types.StatusRecord) error {
	values := make([]any, 0, 2*(len(rec.Fields)+1))
	values = append(values, "run_id", runID)
	for _, f := range types.StatusFields {
		if v, ok := rec.Fields[f]; ok {
			values = append(values, f, v)
		}
	}
	if err := r.client.HSet(ctx, r.prefix+runID, values...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", runID, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, runID string) (*types.StatusRecord, error) {
	m, err := r.client.HGetAll(ctx, r.prefix+runID).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(m) == 0) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", runID, err)
	}
	rec := types.NewStatusRecord(runID)
	for _, f := range types.StatusFields {
		if v, ok := m[f]; ok {
			rec.Fields[f] = v
		}
	}
	return &rec, nil
}

func (r *Redis) Close() error { return r.client.Close() }
