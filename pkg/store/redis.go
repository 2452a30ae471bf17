package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the client used by the redis persistence adapter.
type Redis struct {
	Connection *redis.Client
}

// NewRedis connects and verifies the instance is reachable.
func NewRedis(url string) (store Redis, err error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return
	}
	store.Connection = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = store.Connection.Ping(ctx).Err()

	return
}
