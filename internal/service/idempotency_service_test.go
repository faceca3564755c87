package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
)

// MockIdempotencyStore is a mock implementation of store.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockIdempotencyStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

func TestIdempotencyService_RoundTrip(t *testing.T) {
	svc := NewIdempotencyService(store.NewMemoryIdempotencyStore(), time.Hour, zap.NewNop())
	ctx := context.Background()
	hash := Fingerprint([]byte(`{"kind":"broadcast"}`))

	record, err := svc.Get(ctx, "acme", "admin", "key-1", hash)
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, svc.Store(ctx, "acme", "admin", "key-1", &IdempotencyRecord{NotificationIDs: []int64{42}, RequestHash: hash}))

	record, err = svc.Get(ctx, "acme", "admin", "key-1", hash)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []int64{42}, record.NotificationIDs)
	assert.False(t, record.CreatedAt.IsZero())

	// Keys are scoped per tenant and caller.
	record, err = svc.Get(ctx, "globex", "admin", "key-1", hash)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestIdempotencyService_KeyReuseWithDifferentBody(t *testing.T) {
	svc := NewIdempotencyService(store.NewMemoryIdempotencyStore(), time.Hour, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "acme", "admin", "key-1", &IdempotencyRecord{
		NotificationIDs: []int64{1},
		RequestHash:     Fingerprint([]byte("a")),
	}))

	_, err := svc.Get(ctx, "acme", "admin", "key-1", Fingerprint([]byte("b")))
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidArgument))
}

func TestIdempotencyService_StoreErrors(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	svc := NewIdempotencyService(mockStore, time.Minute, zap.NewNop())
	ctx := context.Background()

	mockStore.On("Get", ctx, "idempotency:acme:admin:k").Return(nil, errors.New("connection refused"))
	mockStore.On("SetIfAbsent", ctx, "idempotency:acme:admin:k", mock.Anything, time.Minute).Return(false, nil)

	_, err := svc.Get(ctx, "acme", "admin", "k", "h")
	assert.ErrorContains(t, err, "connection refused")

	// Losing the race to another writer is not an error.
	assert.NoError(t, svc.Store(ctx, "acme", "admin", "k", &IdempotencyRecord{RequestHash: "h"}))

	mockStore.AssertExpectations(t)
}

func TestIdempotencyService_CorruptRecord(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	svc := NewIdempotencyService(mockStore, time.Minute, zap.NewNop())
	ctx := context.Background()

	mockStore.On("Get", ctx, "idempotency:acme:u1:k").Return([]byte("not json"), nil)

	_, err := svc.Get(ctx, "acme", "u1", "k", "h")
	assert.ErrorContains(t, err, "failed to decode idempotency record")
}
