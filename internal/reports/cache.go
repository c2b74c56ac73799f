package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "reports:version"
	bumpChannel     = "reports.bump"

	// DefaultSharedFetchTimeout bounds an upstream call shared by several callers.
	DefaultSharedFetchTimeout = 30 * time.Second
)

// CachedSource decorates a Source with versioned Redis caching. Concurrent identical
// fetches share one upstream call, which outlives the cancellation of any single caller.
// Redis failures degrade to uncached fetches.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	// SharedTimeout bounds the shared upstream call. Defaults to DefaultSharedFetchTimeout.
	SharedTimeout time.Duration
	Logger        *slog.Logger
}

// NewCachedSource wraps next. A nil client disables caching.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl, SharedTimeout: DefaultSharedFetchTimeout}
}

// FetchReport implements Source.
func (c *CachedSource) FetchReport(ctx context.Context, endpoint string, query url.Values) ([]Record, error) {
	if c.next == nil {
		return nil, errors.New("reports: cached source has no upstream")
	}
	if c.client == nil {
		return c.next.FetchReport(ctx, endpoint, query)
	}
	key, err := c.BuildKey(ctx, endpoint, query)
	if err != nil {
		c.log().Warn("report cache unavailable", slog.String("endpoint", endpoint), slog.Any("error", err))
		return c.next.FetchReport(ctx, endpoint, query)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		records, derr := DecodeRecords(bytes.NewReader(payload))
		if derr == nil {
			return records, nil
		}
		c.log().Warn("discard corrupt report cache entry", slog.String("key", key), slog.Any("error", derr))
	case !errors.Is(err, redis.Nil):
		c.log().Warn("read report cache", slog.String("key", key), slog.Any("error", err))
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(detached, c.sharedTimeout())
		defer cancel()
		records, err := c.next.FetchReport(fetchCtx, endpoint, query)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(fetchCtx, key, raw, c.ttl).Err(); err != nil {
			c.log().Warn("write report cache", slog.String("key", key), slog.Any("error", err))
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return DecodeRecords(bytes.NewReader(res.Val.([]byte)))
	}
}

func (c *CachedSource) sharedTimeout() time.Duration {
	if c.SharedTimeout > 0 {
		return c.SharedTimeout
	}
	return DefaultSharedFetchTimeout
}

func (c *CachedSource) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Version returns the current cache version, initialising when missing.
func (c *CachedSource) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
	}
	return ver, nil
}

// BuildKey composes the versioned cache key of a fetch.
func (c *CachedSource) BuildKey(ctx context.Context, endpoint string, query url.Values) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	parts := []string{"reports", strings.Trim(endpoint, "/"), query.Encode(), strconv.FormatInt(ver, 10)}
	return strings.Join(parts, ":"), nil
}

// Bump invalidates every cached report by moving to a new version.
func (c *CachedSource) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("reports: bump cache: %w", err)
	}
	if err := c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}
