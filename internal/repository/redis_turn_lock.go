package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisTurnLockRepository implements TurnLockRepository
var _ TurnLockRepository = (*redisTurnLockRepository)(nil)

// releaseScript удаляет ключ только если его значение совпадает с токеном
// владельца: держатель, чей замок истек по TTL и был перехвачен другим
// ходом, не может снять чужой.
var releaseScript = redis.NewScript(
	`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`)

type redisTurnLockRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTurnLockRepository создает Redis-реализацию блокировки хода.
// Блокировка защищает сессию от параллельной обработки двух ходов;
// UNIQUE(session_id, turn_number) в Postgres остается последней линией защиты.
func NewRedisTurnLockRepository(client *redis.Client, logger *zap.Logger) TurnLockRepository {
	return &redisTurnLockRepository{
		client: client,
		logger: logger.Named("RedisTurnLockRepo"),
	}
}

func turnLockKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("turn_lock:%s", sessionID.String())
}

// Acquire пытается захватить блокировку через SET NX EX со случайным токеном.
// Возвращает пустой токен, если блокировка уже удерживается другим ходом.
func (r *redisTurnLockRepository) Acquire(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (string, error) {
	key := turnLockKey(sessionID)
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		r.logger.Error("Failed to acquire turn lock", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("ошибка захвата блокировки хода %s: %w", key, err)
	}
	if !ok {
		r.logger.Debug("Turn lock already held", zap.String("key", key))
		return "", nil
	}
	return token, nil
}

func (r *redisTurnLockRepository) Release(ctx context.Context, sessionID uuid.UUID, token string) error {
	key := turnLockKey(sessionID)
	deleted, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		r.logger.Error("Failed to release turn lock", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка освобождения блокировки хода %s: %w", key, err)
	}
	if deleted == 0 {
		r.logger.Warn("Turn lock expired before release", zap.String("key", key))
	}
	return nil
}
