// Package billing keeps per-caller monthly call volume and spend. The volume
// feeds the cost model's discount tiers; updates arrive asynchronously through
// BillingQueueWorker after each call completes.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// VolumeService reads and updates a caller's monthly usage.
type VolumeService interface {
	MonthlyCalls(ctx context.Context, callerKey string) (int64, error)
	AddUsage(ctx context.Context, callerKey string, calls int64, costUSD decimal.Decimal) error
}

// NoopVolumeService reports zero volume and discards usage.
type NoopVolumeService struct{}

func NewNoopVolumeService() *NoopVolumeService {
	return &NoopVolumeService{}
}

func (s *NoopVolumeService) MonthlyCalls(ctx context.Context, callerKey string) (int64, error) {
	return 0, nil
}

func (s *NoopVolumeService) AddUsage(ctx context.Context, callerKey string, calls int64, costUSD decimal.Decimal) error {
	return nil
}

// spendScale stores spend as integer nano-dollars so Redis arithmetic stays exact.
const spendScale = 9

// counterTTL keeps two months of counters.
const counterTTL = 60 * 24 * time.Hour

var addUsageScript = redis.NewScript(`
	local ttl = tonumber(ARGV[3])

	local calls = redis.call('INCRBY', KEYS[1], ARGV[1])
	redis.call('EXPIRE', KEYS[1], ttl)

	redis.call('INCRBY', KEYS[2], ARGV[2])
	redis.call('EXPIRE', KEYS[2], ttl)

	return calls
`)

// RedisVolumeService keeps monthly counters in Redis, keyed by UTC calendar month.
type RedisVolumeService struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisVolumeService creates a Redis-backed volume service
func NewRedisVolumeService(client *redis.Client) *RedisVolumeService {
	return &RedisVolumeService{redis: client, now: time.Now}
}

// AddUsage atomically increments the caller's call count and spend for the current month
func (s *RedisVolumeService) AddUsage(ctx context.Context, callerKey string, calls int64, costUSD decimal.Decimal) error {
	year, month := s.period(s.now())
	keys := []string{s.callsKey(callerKey, year, month), s.spendKey(callerKey, year, month)}
	nanos := costUSD.Shift(spendScale).Round(0).IntPart()

	if err := addUsageScript.Run(ctx, s.redis, keys, calls, nanos, int(counterTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	return nil
}

// MonthlyCalls returns the caller's call count for the current month
func (s *RedisVolumeService) MonthlyCalls(ctx context.Context, callerKey string) (int64, error) {
	year, month := s.period(s.now())
	return s.CallsFor(ctx, callerKey, year, month)
}

// CallsFor returns the call count for a specific month
func (s *RedisVolumeService) CallsFor(ctx context.Context, callerKey string, year, month int) (int64, error) {
	val, err := s.redis.Get(ctx, s.callsKey(callerKey, year, month)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get monthly calls: %w", err)
	}
	return val, nil
}

// MonthlySpend returns the caller's spend for the current month
func (s *RedisVolumeService) MonthlySpend(ctx context.Context, callerKey string) (decimal.Decimal, error) {
	year, month := s.period(s.now())
	raw, err := s.redis.Get(ctx, s.spendKey(callerKey, year, month)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get monthly spend: %w", err)
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid spend counter %q: %w", raw, err)
	}
	return decimal.New(nanos, -spendScale), nil
}

// ResetMonth clears the caller's counters for the current month (admin use)
func (s *RedisVolumeService) ResetMonth(ctx context.Context, callerKey string) error {
	year, month := s.period(s.now())
	return s.redis.Del(ctx, s.callsKey(callerKey, year, month), s.spendKey(callerKey, year, month)).Err()
}

func (s *RedisVolumeService) period(t time.Time) (int, int) {
	t = t.UTC()
	return t.Year(), int(t.Month())
}

func (s *RedisVolumeService) callsKey(callerKey string, year, month int) string {
	return fmt.Sprintf("calls:%s:%d:%02d", callerKey, year, month)
}

func (s *RedisVolumeService) spendKey(callerKey string, year, month int) string {
	return fmt.Sprintf("cost:%s:%d:%02d", callerKey, year, month)
}
