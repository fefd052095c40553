package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/talgya/village-mind/internal/engine"
)

// historyLen is how many past snapshots are kept under <key>:history.
const historyLen = 5

// RedisArchive stores the latest town snapshot as JSON under one key, with
// a short history list beside it.
type RedisArchive struct {
	rdb *redis.Client
	key string
}

var _ engine.Archive = (*RedisArchive)(nil)

// NewRedisArchive connects to addr, which is either host:port or a
// redis:// URL, and pings it.
func NewRedisArchive(ctx context.Context, addr, key string) (*RedisArchive, error) {
	var opt *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		var err error
		opt, err = redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	} else {
		opt = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisArchive{rdb: rdb, key: key}, nil
}

// SaveSnapshot replaces the latest snapshot and pushes it onto the history.
func (a *RedisArchive) SaveSnapshot(ctx context.Context, s *engine.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	history := a.key + ":history"
	pipe := a.rdb.TxPipeline()
	pipe.Set(ctx, a.key, data, 0)
	pipe.LPush(ctx, history, data)
	pipe.LTrim(ctx, history, 0, historyLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the latest snapshot, or an error wrapping
// engine.ErrNoSnapshot if the key is unset.
func (a *RedisArchive) LoadSnapshot(ctx context.Context) (*engine.Snapshot, error) {
	data, err := a.rdb.Get(ctx, a.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis archive %s: %w", a.key, engine.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var s engine.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// History returns up to historyLen past snapshot ticks, newest first.
func (a *RedisArchive) History(ctx context.Context) ([]uint64, error) {
	raw, err := a.rdb.LRange(ctx, a.key+":history", 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	ticks := make([]uint64, 0, len(raw))
	for _, r := range raw {
		var head struct {
			Tick uint64 `json:"tick"`
		}
		if err := json.Unmarshal([]byte(r), &head); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		ticks = append(ticks, head.Tick)
	}
	return ticks, nil
}

// Close closes the client.
func (a *RedisArchive) Close() error {
	return a.rdb.Close()
}
