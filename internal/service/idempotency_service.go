package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

// IdempotencyService remembers the outcome of create requests that carry an
// Idempotency-Key so retries return the original notification ids.
type IdempotencyService struct {
	idempotencyStore store.IdempotencyStore
	ttl              time.Duration
	logger           *zap.Logger
}

// IdempotencyRecord is the stored outcome of a create request
type IdempotencyRecord struct {
	NotificationIDs []int64   `json:"notification_ids"`
	RequestHash     string    `json:"request_hash"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewIdempotencyService creates a new idempotency service
func NewIdempotencyService(
	idempotencyStore store.IdempotencyStore,
	ttl time.Duration,
	logger *zap.Logger,
) *IdempotencyService {
	return &IdempotencyService{
		idempotencyStore: idempotencyStore,
		ttl:              ttl,
		logger:           logger,
	}
}

// Fingerprint hashes a request body so a reused key with a different payload
// can be rejected.
func Fingerprint(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// Get returns the stored record, or nil when the key is unused. A key reused
// with a different request hash is rejected.
func (s *IdempotencyService) Get(ctx context.Context, tenantID, userID, idempotencyKey, requestHash string) (*IdempotencyRecord, error) {
	storeKey := buildStoreKey(tenantID, userID, idempotencyKey)

	data, err := s.idempotencyStore.Get(ctx, storeKey)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("Idempotency key not found",
			zap.String("tenant_id", tenantID),
			zap.String("idempotency_key", idempotencyKey))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var record IdempotencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.logger.Error("Invalid idempotency record",
			zap.String("tenant_id", tenantID),
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}

	if record.RequestHash != requestHash {
		return nil, apperrors.InvalidArgument("idempotency key was already used with a different request")
	}

	return &record, nil
}

// Store records the outcome. The first writer for a key wins.
func (s *IdempotencyService) Store(ctx context.Context, tenantID, userID, idempotencyKey string, record *IdempotencyRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	stored, err := s.idempotencyStore.SetIfAbsent(ctx, buildStoreKey(tenantID, userID, idempotencyKey), data, s.ttl)
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	if !stored {
		s.logger.Warn("Idempotency key already recorded",
			zap.String("tenant_id", tenantID),
			zap.String("idempotency_key", idempotencyKey))
	}

	return nil
}

// Ping checks the backing store
func (s *IdempotencyService) Ping(ctx context.Context) error {
	return s.idempotencyStore.Ping(ctx)
}

func buildStoreKey(tenantID, userID, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", tenantID, userID, idempotencyKey)
}
