package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimTTL はWebhookイベントの重複排除キーの保持期間。
// 決済プロバイダーの再送は通常数日以内に収まる。
const claimTTL = 7 * 24 * time.Hour

// IdempotencyStore はWebhookイベントの重複排除のインターフェース。
// Claimは同一キーに対して最初の1回のみtrueを返す。
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// redisIdempotencyStore はRedisのSETNXによるIdempotencyStoreの実装。
// 複数プロセスで動作する場合はこちらを使用する。
type redisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotencyStore はRedisベースのIdempotencyStoreを生成する。
func NewRedisIdempotencyStore(client *redis.Client) *redisIdempotencyStore {
	return &redisIdempotencyStore{
		client: client,
		prefix: "wasteflow:webhook:",
	}
}

// Claim はキーの初回請求を試みる。
func (s *redisIdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	acquired, err := s.client.SetNX(ctx, s.prefix+key, "1", claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return acquired, nil
}

// memoryIdempotencyStore はインメモリのIdempotencyStoreの実装。
// REDIS_URLが未設定の単一プロセス構成で使用する。
// プロセス再起動で状態が失われるため、payments側のUNIQUE制約が最終防壁となる。
type memoryIdempotencyStore struct {
	mu      sync.Mutex
	claimed map[string]time.Time
}

// NewMemoryIdempotencyStore はインメモリのIdempotencyStoreを生成する。
func NewMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{
		claimed: make(map[string]time.Time),
	}
}

// Claim はキーの初回請求を試みる。
func (s *memoryIdempotencyStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if at, ok := s.claimed[key]; ok && now.Sub(at) < claimTTL {
		return false, nil
	}
	s.claimed[key] = now

	// 期限切れエントリの簡易掃除
	for k, at := range s.claimed {
		if now.Sub(at) >= claimTTL {
			delete(s.claimed, k)
		}
	}
	return true, nil
}

// compile-time interface checks
var (
	_ IdempotencyStore = (*redisIdempotencyStore)(nil)
	_ IdempotencyStore = (*memoryIdempotencyStore)(nil)
)
