package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates and returns a new Redis client, or nil when the server
// cannot be reached.
func NewRedisClient(redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("❌ REDIS_URL environment variable is not set")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("❌ Could not parse Redis URL: %v", err)
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("❌ Could not connect to Redis: %v", err)
		_ = client.Close()
		return nil
	}

	log.Println("✅ Successfully connected to Redis")
	return client
}
