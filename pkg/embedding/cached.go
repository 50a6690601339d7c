package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/thairag/thairag/pkg/utils/logging"
)

// Cache stores vectors by key. A miss returns (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error
}

// Cached wraps an Embedder with a vector cache. Cache failures never fail an embedding.
type Cached struct {
	inner Embedder
	cache Cache
	ttl   time.Duration
}

func NewCached(inner Embedder, cache Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: cache, ttl: ttl}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.Name(), text)
	logger := logging.From(ctx)

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("failed to read embedding cache", "error", err)
	} else if ok {
		return vec, nil
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, vec, c.ttl); err != nil {
		logger.Warn("failed to write embedding cache", "error", err)
	}
	return vec, nil
}

func cacheKey(name, text string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + text))
	return "thairag:embedding:" + hex.EncodeToString(sum[:])
}

// RedisCache keeps vectors as little-endian float32 blobs
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse redis url")
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", opt.Addr))
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to get vector", goerr.V("key", key))
	}

	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, goerr.Wrap(err, "broken cache entry", goerr.V("key", key))
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, encodeVector(vec), ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to set vector", goerr.V("key", key))
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, goerr.New("vector blob length is not a multiple of 4", goerr.V("length", len(data)))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
