package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "room:"

// Redis stores rooms as JSON strings under room:<code>, expiring with the room.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts *redis.Options) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func redisKey(code string) string {
	return redisKeyPrefix + NormalizeCode(code)
}

// roomTTL keeps the record until the room expires, with a floor of one second
// so an already expired room is still stored briefly and readable as expired.
func roomTTL(room *Room, now time.Time) time.Duration {
	return max(room.Remaining(now), time.Second)
}

func (r *Redis) Get(ctx context.Context, code string) (*Room, error) {
	data, err := r.client.Get(ctx, redisKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &room, nil
}

func (r *Redis) Create(ctx context.Context, room *Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}

	ok, err := r.client.SetNX(ctx, redisKey(room.Code), data, roomTTL(room, time.Now())).Result()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if !ok {
		return ErrRoomExists
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, redisKey(code)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
