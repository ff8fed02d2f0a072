// Package fetchcache puts a Redis read-through cache in front of source
// adapters. A cache fault is never an adapter fault: on any Redis error the
// wrapped adapter fetches live and the brief proceeds.
package fetchcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/wxbrief/config"
	"github.com/mohammad-safakhou/wxbrief/internal/sources"
)

// TTLs per payload kind. Geocoding is effectively immutable; alert-style
// feeds churn the fastest.
const (
	geocodeTTL = 365 * 24 * time.Hour
	obsTTL     = 10 * time.Minute
	outlookTTL = 10 * time.Minute
	alertsTTL  = 5 * time.Minute
	storyTTL   = 30 * time.Minute
	regionTTL  = 5 * time.Minute
)

type Cache struct {
	client *redis.Client
	log    *log.Logger
}

// New connects to Redis and pings it. Timeouts from the config bound every
// cache operation so a hung Redis cannot eat the assembly window.
func New(cfg config.RedisConfig, logger *log.Logger) (*Cache, error) {
	addr := cfg.Addr()
	if addr == "" {
		return nil, fmt.Errorf("redis not configured (storage.redis.host)")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Cache{client: client, log: logger}
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Wrap returns an adapter that consults the cache before fetching live.
func (c *Cache) Wrap(a sources.Adapter) sources.Adapter {
	return cachedAdapter{inner: a, cache: c}
}

// WrapAll wraps every adapter in the slice, preserving order.
func (c *Cache) WrapAll(adapters []sources.Adapter) []sources.Adapter {
	out := make([]sources.Adapter, len(adapters))
	for i, a := range adapters {
		out[i] = c.Wrap(a)
	}
	return out
}

type cachedAdapter struct {
	inner sources.Adapter
	cache *Cache
}

func (a cachedAdapter) ID() string             { return a.inner.ID() }
func (a cachedAdapter) Kind() sources.Kind     { return a.inner.Kind() }
func (a cachedAdapter) Timeout() time.Duration { return a.inner.Timeout() }

func (a cachedAdapter) Fetch(ctx context.Context, req sources.Request) (sources.Payload, error) {
	key := cacheKey(a.inner, req)
	if raw, err := a.cache.client.Get(ctx, key).Bytes(); err == nil {
		if payload, derr := decodeEnvelope(raw); derr == nil {
			return payload, nil
		}
		// Undecodable entry: drop it and fetch live.
		_ = a.cache.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		a.cache.log.Printf("[CACHE] get %s: %v", key, err)
	}

	payload, err := a.inner.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, merr := encodeEnvelope(payload); merr == nil {
		if serr := a.cache.client.Set(ctx, key, data, ttlFor(payload.Kind())).Err(); serr != nil {
			a.cache.log.Printf("[CACHE] set %s: %v", key, serr)
		}
	}
	return payload, nil
}

type envelope struct {
	Kind    sources.Kind    `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	SavedAt time.Time       `json:"saved_at"`
}

func encodeEnvelope(p sources.Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: p.Kind(), Payload: raw, SavedAt: time.Now().UTC()})
}

func decodeEnvelope(data []byte) (sources.Payload, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return sources.DecodePayload(env.Kind, env.Payload)
}

// cacheKey quantizes coordinates to ~100m so nearby queries share entries.
func cacheKey(a sources.Adapter, req sources.Request) string {
	switch a.Kind() {
	case sources.KindPointContext:
		return "geo:" + strings.ToLower(strings.TrimSpace(req.Place))
	case sources.KindObservations:
		return fmt.Sprintf("obs:%.3f,%.3f:%s", req.Lat, req.Lon, req.Units)
	case sources.KindOutlook:
		return fmt.Sprintf("forecast:%.3f,%.3f:h%d:%s", req.Lat, req.Lon, int(req.Horizon.Hours()), req.Units)
	case sources.KindAlerts:
		return fmt.Sprintf("alerts:%.3f,%.3f", req.Lat, req.Lon)
	case sources.KindProfile:
		return fmt.Sprintf("profile:%.3f,%.3f", req.Lat, req.Lon)
	case sources.KindDiscussion:
		return fmt.Sprintf("story:%.3f,%.3f", req.Lat, req.Lon)
	case sources.KindRegion:
		key := "region:" + a.ID() + ":" + req.Units
		if len(req.Hazards) > 0 {
			key += ":" + strings.Join(req.Hazards, ",")
		}
		return key
	default:
		return "src:" + a.ID() + ":" + strings.ToLower(strings.TrimSpace(req.Place))
	}
}

func ttlFor(kind sources.Kind) time.Duration {
	switch kind {
	case sources.KindPointContext:
		return geocodeTTL
	case sources.KindObservations:
		return obsTTL
	case sources.KindOutlook:
		return outlookTTL
	case sources.KindAlerts:
		return alertsTTL
	case sources.KindDiscussion:
		return storyTTL
	case sources.KindRegion:
		return regionTTL
	default:
		return obsTTL
	}
}
