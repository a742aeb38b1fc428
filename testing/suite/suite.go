package suite

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const maxWaitDuration = 120 * time.Second

type Suite struct {
	*testing.T
	Logger *zap.Logger

	Storage *redis.Client
	// Redis is nil when the suite runs against a real container.
	Redis *miniredis.Miniredis
}

// New - suite backed by an in-process Redis.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	server := miniredis.RunT(t)

	redisClient := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})
	t.Cleanup(func() {
		_ = redisClient.Close()
	})

	return ctx, &Suite{
		T:       t,
		Logger:  zaptest.NewLogger(t),
		Storage: redisClient,
		Redis:   server,
	}
}

// NewClient - another connection to the same Redis, as a second process would have.
func (that *Suite) NewClient() *redis.Client {
	that.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: that.Storage.Options().Addr,
	})
	that.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
