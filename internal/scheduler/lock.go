package scheduler

import (
	"context"
	"course_eval_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	Redis    *redis.Client
	instance string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{Redis: rdb, instance: uuid.New().String()}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := "scheduler:lock:" + name
	ok, err := l.Redis.SetNX(ctx, key, l.instance, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.Redis, []string{key}, l.instance).Err(); err != nil && err != redis.Nil {
			logger.Log.Warn("Failed to release job lock", zap.String("job", name), zap.Error(err))
		}
	}
	return release, true, nil
}
