package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/models"
)

const (
	taskKeyPrefix  = "task:"
	expiryIndexKey = "tasks:expiry"

	updateAttempts = 3
)

type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func Connect(addr string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}

func (s *RedisStore) Create(ctx context.Context, task *models.Task, ttl time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, taskKey(task.ID), data, ttl).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return ErrTaskExists
	}

	// The sorted set is the sweeper's index: it outlives the record's own
	// TTL so the filesystem side can still be reclaimed.
	expiresAt := task.CreatedAt.Add(ttl).Unix()
	if err := s.client.ZAdd(ctx, expiryIndexKey, redis.Z{
		Score:  float64(expiresAt),
		Member: task.ID,
	}).Err(); err != nil {
		s.logger.Warn("failed to index task expiry",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Task, error) {
	data, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, unavailable(err)
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}

	return &task, nil
}

// Update applies the mutator under a WATCH so the transition is atomic and
// keeps the remaining TTL. An expired or unknown id yields ErrTaskNotFound:
// the caller must treat its in-flight work as wasted, not retry the write.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*models.Task) error) (*models.Task, error) {
	key := taskKey(id)

	var updated *models.Task
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrTaskNotFound
			}
			return unavailable(err)
		}

		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}

		if err := mutate(&task); err != nil {
			return err
		}

		out, err := json.Marshal(&task)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return err
			}
			return unavailable(err)
		}

		updated = &task
		return nil
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Key changed under us; with a single writer per task this
			// means native expiry fired mid-update.
			continue
		}
		return nil, err
	}

	return nil, ErrTaskNotFound
}

func (s *RedisStore) TTLRemaining(ctx context.Context, id string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, taskKey(id)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if d < 0 {
		return 0, ErrTaskNotFound
	}
	return d, nil
}

func (s *RedisStore) ExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, taskKey(id))
		pipe.ZRem(ctx, expiryIndexKey, id)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
