package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"watermarkd/internal/config"
	"watermarkd/internal/domain"
)

const recordKeyPrefix = "verification:"

// Ledger persists verification records with TTL expiry. Each write is an
// independent upsert; expiry is the store's job, an expired record reads as
// not found.
type Ledger interface {
	Put(ctx context.Context, record *domain.VerificationRecord) error
	Get(ctx context.Context, id string) (*domain.VerificationRecord, error)
	Close() error
}

type redisLedger struct {
	client    *redis.Client
	retention time.Duration
	log       *zap.Logger
}

func NewRedisLedger(cfg *config.RedisConfig, retention time.Duration, log *zap.Logger) (Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisLedger{
		client:    client,
		retention: retention,
		log:       log,
	}, nil
}

// NewRedisLedgerFromClient wires an existing client; tests use it with
// miniredis.
func NewRedisLedgerFromClient(client *redis.Client, retention time.Duration, log *zap.Logger) Ledger {
	return &redisLedger{
		client:    client,
		retention: retention,
		log:       log,
	}
}

func (l *redisLedger) Put(ctx context.Context, record *domain.VerificationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal verification record: %w", err)
	}

	key := recordKeyPrefix + record.VerificationID
	if err := l.client.Set(ctx, key, data, l.retention).Err(); err != nil {
		l.log.Error("Failed to write verification record",
			zap.String("verification_id", record.VerificationID),
			zap.Error(err))
		return fmt.Errorf("%w: ledger put %s: %v", domain.ErrStorageFailure, record.VerificationID, err)
	}

	l.log.Info("Verification record saved",
		zap.String("verification_id", record.VerificationID),
		zap.String("status", string(record.Status)))

	return nil
}

func (l *redisLedger) Get(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	data, err := l.client.Get(ctx, recordKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: verification record %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ledger get %s: %v", domain.ErrStorageFailure, id, err)
	}

	var record domain.VerificationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal verification record %s: %w", id, err)
	}

	return &record, nil
}

func (l *redisLedger) Close() error {
	return l.client.Close()
}
