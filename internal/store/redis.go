package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// watchChannelPrefix namespaces the pub/sub channels carrying key updates.
	watchChannelPrefix = "store:"

	// defaultCASRetries bounds the optimistic transaction retry loop.
	defaultCASRetries = 16
)

// Redis implements Store on a redis instance. Compare-and-set uses the
// WATCH/MULTI/EXEC optimistic transaction, retried on contention; key
// subscriptions ride on pub/sub channels, one per key. Values are JSON
// documents, so an empty pub/sub payload unambiguously encodes a delete.
type Redis struct {
	client     *redis.Client
	maxRetries int
	logger     *zerolog.Logger
}

// NewRedis wraps an existing client. maxRetries <= 0 selects the default.
func NewRedis(client *redis.Client, maxRetries int, logger *zerolog.Logger) *Redis {
	if maxRetries <= 0 {
		maxRetries = defaultCASRetries
	}
	return &Redis{client: client, maxRetries: maxRetries, logger: logger}
}

func (r *Redis) Read(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store read %s: %w", key, err)
	}
	return val, nil
}

func (r *Redis) Write(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("store write %s: %w", key, err)
	}
	r.publish(ctx, key, value)
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store delete %s: %w", key, err)
	}
	r.publish(ctx, key, nil)
	return nil
}

func (r *Redis) CompareAndSet(ctx context.Context, key string, fn CASFunc) (Result, error) {
	var res Result

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err == ErrAbort {
			res = Result{Committed: false, Value: current}
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, next, 0)
			}
			return nil
		})
		if err != nil {
			return err
		}

		res = Result{Committed: true, Value: next}
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			if res.Committed {
				r.publish(ctx, key, res.Value)
			}
			return res, nil
		}
		if err != redis.TxFailedErr {
			return Result{}, fmt.Errorf("store cas %s: %w", key, err)
		}
		lastErr = err
	}

	return Result{}, fmt.Errorf("store cas %s: retries exhausted: %w", key, lastErr)
}

func (r *Redis) Watch(ctx context.Context, key string, fn func(value []byte)) (Unsubscribe, error) {
	sub := r.client.Subscribe(ctx, watchChannelPrefix+key)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("store watch %s: %w", key, err)
	}

	go func() {
		for msg := range sub.Channel() {
			if msg.Payload == "" {
				fn(nil)
				continue
			}
			fn([]byte(msg.Payload))
		}
	}()

	return func() { _ = sub.Close() }, nil
}

func (r *Redis) publish(ctx context.Context, key string, value []byte) {
	if err := r.client.Publish(ctx, watchChannelPrefix+key, string(value)).Err(); err != nil && r.logger != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("store publish failed")
	}
}

// Ping verifies the connection before the store is put into service.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
