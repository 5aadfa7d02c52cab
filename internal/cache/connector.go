package cache

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/wallet-shell/internal/config"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

var (
	Redis       *redis.Client
	RateLimiter *redis_rate.Limiter
)

func Init(cred *config.DBCredential) error {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	client := redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	if _, err := client.Ping(context.TODO()).Result(); err != nil {
		client.Close()
		return errors.WrapAndReport(err, "ping to redis")
	}
	log.Infof("connected to redis %v", cred.GetRedisAddress())
	Redis = client
	RateLimiter = redis_rate.NewLimiter(Redis)
	return nil
}

func Close() {
	if Redis != nil {
		Redis.Close()
		Redis = nil
		RateLimiter = nil
	}
}
