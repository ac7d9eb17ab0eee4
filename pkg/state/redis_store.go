package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// RedisStore archives reports in Redis with a sorted index by completion time
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithTTL sets the expiration for stored reports
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for stored reports
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to Redis at address
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "cra:report:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// Save writes the report and indexes it by completion time
func (s *RedisStore) Save(ctx context.Context, report *domain.ResearchReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("report ID is required")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(report.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(report.CompletedAt.UnixNano()),
		Member: report.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a report
func (s *RedisStore) Load(ctx context.Context, id string) (*domain.ResearchReport, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decodeReport(val)
}

// List walks the index newest first. Index entries whose report expired are
// dropped lazily.
func (s *RedisStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.ReportSummary, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var summaries []domain.ReportSummary
	var stale []interface{}
	for _, id := range ids {
		report, err := s.Load(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrReportNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		summaries = append(summaries, report.Summarize())
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}

	start, end := opts.Window(len(summaries))
	return summaries[start:end], nil
}

// Delete removes the report and its index entry
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
