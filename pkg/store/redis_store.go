package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abdhe/essay-forge/pkg/dispatch"
)

// RedisStore keeps generated essays in Redis for downstream consumers and
// tracks which prompt hashes each model has already seen.
//
// Keys:
//
//	essay:<run>:<result id>   JSON result, expires after ttl
//	essays:<run>              list of result ids in arrival order
//	prompts:<model id>        set of prompt hashes
type RedisStore struct {
	client *redis.Client
	runID  string
	ttl    time.Duration
}

// NewRedisStore creates a store for a fresh run id. A zero ttl keeps results forever.
func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		runID: uuid.NewString(),
		ttl:   ttl,
	}
}

// RunID identifies this run's keys.
func (r *RedisStore) RunID() string { return r.runID }

// Save writes results in a single pipeline.
func (r *RedisStore) Save(ctx context.Context, results []dispatch.Result) error {
	if len(results) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, res := range results {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("redis_store: marshal: %w", err)
		}
		pipe.Set(ctx, r.essayKey(res.ID), data, r.ttl)
		pipe.RPush(ctx, r.listKey(), res.ID)
		pipe.SAdd(ctx, promptsKey(res.ModelID), res.PromptHash)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis_store: save: %w", err)
	}
	return nil
}

// Seen reports whether modelID already produced an essay for promptHash.
func (r *RedisStore) Seen(ctx context.Context, modelID, promptHash string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, promptsKey(modelID), promptHash).Result()
	if err != nil {
		return false, fmt.Errorf("redis_store: seen: %w", err)
	}
	return ok, nil
}

// Get loads one result of this run.
func (r *RedisStore) Get(ctx context.Context, id string) (dispatch.Result, bool, error) {
	val, err := r.client.Get(ctx, r.essayKey(id)).Result()
	if err == redis.Nil {
		return dispatch.Result{}, false, nil
	}
	if err != nil {
		return dispatch.Result{}, false, fmt.Errorf("redis_store: get: %w", err)
	}

	var res dispatch.Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return dispatch.Result{}, false, fmt.Errorf("redis_store: unmarshal: %w", err)
	}
	return res, true, nil
}

// Count returns how many results this run has stored.
func (r *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.listKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis_store: count: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) essayKey(id string) string { return "essay:" + r.runID + ":" + id }
func (r *RedisStore) listKey() string           { return "essays:" + r.runID }
func promptsKey(modelID string) string          { return "prompts:" + modelID }
