package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"peak_analyzer/internal/analysis"
)

const (
	// AnalysisKeyPrefix prefixes cached analysis results.
	AnalysisKeyPrefix = "analysis:"
	// DefaultTTL bounds how long a cached result is served.
	DefaultTTL = 10 * time.Minute
)

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisCache stores analysis results keyed by a digest of their inputs.
type RedisCache struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return newRedisCache(client, ttl), nil
}

func newRedisCache(client redisClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// GetResult returns the cached result for digest. A miss is not an error.
func (r *RedisCache) GetResult(ctx context.Context, digest string) (*analysis.Result, bool, error) {
	data, err := r.client.Get(ctx, AnalysisKeyPrefix+digest).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached result: %w", err)
	}

	var res analysis.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decoding cached result: %w", err)
	}
	return &res, true, nil
}

func (r *RedisCache) PutResult(ctx context.Context, digest string, res *analysis.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := r.client.Set(ctx, AnalysisKeyPrefix+digest, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("caching result: %w", err)
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// RequestDigest hashes everything that determines an analysis result: the
// samples, the interval and the engine options.
func RequestDigest(req analysis.Request, opts analysis.Options) string {
	h := sha256.New()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeFloat := func(v float64) { writeUint(math.Float64bits(v)) }

	writeUint(uint64(req.IntervalMinutes))
	writeFloat(opts.ToleranceFactor)
	writeFloat(opts.Sizing.DepthOfDischarge)
	writeFloat(opts.Sizing.SafetyMargin)
	writeUint(uint64(len(req.Samples)))
	for _, s := range req.Samples {
		var ts int64
		if s.HasTimestamp() {
			ts = s.Timestamp.UnixNano()
		}
		writeUint(uint64(ts))
		writeFloat(s.PowerKW)
	}
	return hex.EncodeToString(h.Sum(nil))
}
