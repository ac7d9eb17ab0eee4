package state

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewReportStore builds the report archive selected by configuration. The
// returned closer releases connections held by the store.
func NewReportStore(ctx context.Context, cfg config.StorageConfig) (domain.ReportStore, io.Closer, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nopCloser{}, nil

	case "file":
		store, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil

	case "database", "sqlite":
		store, err := NewSQLiteStore(ctx, cfg.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	case "redis":
		var opts []RedisOption
		if cfg.Redis.Prefix != "" {
			opts = append(opts, WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.TTL != "" {
			ttl, err := time.ParseDuration(cfg.TTL)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid storage ttl: %w", err)
			}
			opts = append(opts, WithTTL(ttl))
		}
		store := NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, opts...)
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
