package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRedisCache struct {
	mock.Mock
	data map[string]interface{}
}

func NewMockRedisCache() *MockRedisCache {
	return &MockRedisCache{
		data: make(map[string]interface{}),
	}
}

func (m *MockRedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockRedisCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	if args.Error(0) == nil {
		m.data[key] = value
	}
	return args.Error(0)
}

func (m *MockRedisCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ Cache = (*MockRedisCache)(nil)
var _ Cache = (*RedisCache)(nil)

func TestRedisCache_SetAndGet(t *testing.T) {
	mockCache := NewMockRedisCache()
	ctx := context.Background()

	type TestData struct {
		ID   string
		Name string
	}

	testData := TestData{ID: "123", Name: "test"}
	key := "test:key"

	mockCache.On("SetWithTTL", ctx, key, testData, time.Hour).Return(nil)
	mockCache.On("Get", ctx, key, mock.AnythingOfType("*cache.TestData")).Return(nil)

	err := mockCache.SetWithTTL(ctx, key, testData, time.Hour)
	assert.NoError(t, err)
	assert.Contains(t, mockCache.data, key)

	var retrieved TestData
	err = mockCache.Get(ctx, key, &retrieved)
	assert.NoError(t, err)

	mockCache.AssertExpectations(t)
}

func TestRedisCache_Miss(t *testing.T) {
	mockCache := NewMockRedisCache()
	ctx := context.Background()

	mockCache.On("Get", ctx, "missing", mock.Anything).Return(ErrNotFound)

	var dest string
	err := mockCache.Get(ctx, "missing", &dest)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	_, err := NewRedisCache("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestCacheKey_String(t *testing.T) {
	key := CacheKey{Prefix: "task", ID: "123"}
	assert.Equal(t, "task:123", key.String())
}

func TestTranscriptCacheKey(t *testing.T) {
	key := TranscriptCacheKey("AgADbQADr7kxSA")
	assert.Equal(t, "transcript:AgADbQADr7kxSA", key)
}
