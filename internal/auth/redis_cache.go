package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"campus-loyalty/internal/logger"
	"campus-loyalty/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	actorCacheKeyPrefix = "loyalty:actor:"
	actorCacheTTL       = 30 * time.Second
)

// ActorCache keeps recently resolved users in Redis so the auth middleware
// does not hit the database on every request. The short TTL bounds how stale
// a role or verified flag can be.
type ActorCache struct {
	client *redis.Client
	log    *logger.Logger
}

// InitializeActorCache connects to Redis and verifies it is usable.
func InitializeActorCache(redisAddr string, log *logger.Logger) (*ActorCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "",
		DB:       0,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		if log != nil {
			log.Error("AUTH", fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
		}
		return nil, err
	}

	if log != nil {
		log.Info("AUTH", fmt.Sprintf("Connected to Redis at %s for actor caching", redisAddr))
	}

	return &ActorCache{client: client, log: log}, nil
}

// Get returns the cached user for a utorid, or nil on a miss.
func (c *ActorCache) Get(ctx context.Context, utorid string) (*models.User, error) {
	data, err := c.client.Get(ctx, actorCacheKeyPrefix+utorid).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Set caches a resolved user.
func (c *ActorCache) Set(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, actorCacheKeyPrefix+user.Utorid, data, actorCacheTTL).Err()
}

// Invalidate drops a cached user, for callers that just changed their row.
func (c *ActorCache) Invalidate(ctx context.Context, utorid string) error {
	return c.client.Del(ctx, actorCacheKeyPrefix+utorid).Err()
}

func (c *ActorCache) Close() error {
	return c.client.Close()
}
