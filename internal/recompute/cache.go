package recompute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-statements/internal/statements"
)

const (
	versionKeyPrefix = "statements:version"
	// BumpChannel carries "<report_id>:<version>" after every saved period.
	BumpChannel = "statements.bump"
)

// Cache keeps computed grids in Redis behind a per-report version.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(reportID int64) string {
	return versionKeyPrefix + ":" + strconv.FormatInt(reportID, 10)
}

// Version returns the report's cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context, reportID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionKey(reportID)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// GridKey composes the versioned key of one period grid.
func (c *Cache) GridKey(ctx context.Context, reportID int64, periodType statements.PeriodType, start, end time.Time) (string, error) {
	key := strings.Join([]string{
		"statements", "grid",
		strconv.FormatInt(reportID, 10),
		string(periodType),
		start.Format(time.DateOnly),
		end.Format(time.DateOnly),
	}, ":")
	if c == nil || c.client == nil {
		return key, nil
	}
	ver, err := c.Version(ctx, reportID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", key, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("recompute: cache loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached grid of the report and notifies peers.
func (c *Cache) Bump(ctx context.Context, reportID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(reportID)).Result()
	if err != nil {
		return err
	}
	msg := strconv.FormatInt(reportID, 10) + ":" + strconv.FormatInt(ver, 10)
	return c.client.Publish(ctx, BumpChannel, msg).Err()
}

// ListenForInvalidation applies version bumps published by other instances
// until ctx is done.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.apply(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (c *Cache) apply(ctx context.Context, payload string) {
	reportPart, verPart, found := strings.Cut(payload, ":")
	reportID, err := strconv.ParseInt(reportPart, 10, 64)
	if err != nil {
		return
	}
	if found {
		if ver, err := strconv.ParseInt(verPart, 10, 64); err == nil {
			_ = c.client.Set(ctx, versionKey(reportID), ver, 0).Err()
			return
		}
	}
	_ = c.client.Incr(ctx, versionKey(reportID)).Err()
}
