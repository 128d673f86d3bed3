package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nivesh/finassist/internal/pkg/errors"
)

const (
	redisExecutionsKey = "finassist:agent:executions:"
	redisFeedbackKey   = "finassist:agent:feedback"
	redisWeightsKey    = "finassist:agent:weights"
	redisTraceKey      = "finassist:agent:traces"
)

// RedisStorage persists agent state in Redis. Executions and feedback
// live in sorted sets scored by timestamp so restart reconstruction can
// range-query the trend window; weights live in a hash.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage connects to Redis at url (redis://...). Records older
// than ttl are trimmed on write; ttl <= 0 keeps 30 days.
func NewRedisStorage(url string, ttl time.Duration) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("parsing redis URL: %v", err))
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.StorageError("connecting to redis", err)
	}

	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStorage{client: client, ttl: ttl}, nil
}

func (rs *RedisStorage) SaveExecution(ctx context.Context, exec Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return errors.InternalError("marshal execution", err)
	}

	key := redisExecutionsKey + string(exec.AgentType)
	minScore := strconv.FormatInt(time.Now().Add(-rs.ttl).Unix(), 10)

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(exec.Timestamp.Unix()),
		Member: string(data),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", minScore)
	pipe.HSet(ctx, redisTraceKey, exec.TraceID, string(exec.AgentType))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("saving execution", err)
	}
	return nil
}

func (rs *RedisStorage) SaveFeedback(ctx context.Context, fb Feedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return errors.InternalError("marshal feedback", err)
	}

	minScore := strconv.FormatInt(time.Now().Add(-rs.ttl).Unix(), 10)

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, redisFeedbackKey, redis.Z{
		Score:  float64(fb.Timestamp.Unix()),
		Member: string(data),
	})
	pipe.ZRemRangeByScore(ctx, redisFeedbackKey, "-inf", minScore)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("saving feedback", err)
	}
	return nil
}

func (rs *RedisStorage) LoadExecutions(ctx context.Context, since time.Time) ([]Execution, error) {
	var out []Execution
	for _, t := range AllTypes() {
		key := redisExecutionsKey + string(t)
		members, err := rs.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: strconv.FormatInt(since.Unix(), 10),
			Max: "+inf",
		}).Result()
		if err != nil {
			return nil, errors.StorageError("loading executions", err)
		}
		for _, m := range members {
			var exec Execution
			if err := json.Unmarshal([]byte(m), &exec); err != nil {
				continue
			}
			out = append(out, exec)
		}
	}
	return out, nil
}

func (rs *RedisStorage) LoadFeedback(ctx context.Context, since time.Time) ([]Feedback, error) {
	members, err := rs.client.ZRangeByScore(ctx, redisFeedbackKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.StorageError("loading feedback", err)
	}

	out := make([]Feedback, 0, len(members))
	for _, m := range members {
		var fb Feedback
		if err := json.Unmarshal([]byte(m), &fb); err != nil {
			continue
		}
		out = append(out, fb)
	}
	return out, nil
}

func (rs *RedisStorage) SaveWeights(ctx context.Context, weights map[Type]float64) error {
	fields := make(map[string]any, len(weights))
	for t, w := range weights {
		fields[string(t)] = strconv.FormatFloat(w, 'f', -1, 64)
	}

	pipe := rs.client.Pipeline()
	pipe.Del(ctx, redisWeightsKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, redisWeightsKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("saving weights", err)
	}
	return nil
}

func (rs *RedisStorage) LoadWeights(ctx context.Context) (map[Type]float64, error) {
	fields, err := rs.client.HGetAll(ctx, redisWeightsKey).Result()
	if err != nil {
		return nil, errors.StorageError("loading weights", err)
	}

	out := make(map[Type]float64, len(fields))
	for t, raw := range fields {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[Type(t)] = w
	}
	return out, nil
}

func (rs *RedisStorage) Reset(ctx context.Context, agentType Type) error {
	key := redisExecutionsKey + string(agentType)

	// Collect trace IDs before dropping the executions so the trace
	// index stays consistent.
	members, err := rs.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return errors.StorageError("loading executions for reset", err)
	}

	pipe := rs.client.Pipeline()
	for _, m := range members {
		var exec Execution
		if err := json.Unmarshal([]byte(m), &exec); err != nil {
			continue
		}
		pipe.HDel(ctx, redisTraceKey, exec.TraceID)
	}
	pipe.Del(ctx, key)
	pipe.HDel(ctx, redisWeightsKey, string(agentType))
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError("resetting agent state", err)
	}
	return nil
}

func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
