package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
)

// NewRedisStreamPublisher connects to Redis and returns a Watermill publisher
// writing to Redis Streams. The caller owns both returned values and closes
// the publisher before the client.
func NewRedisStreamPublisher(ctx context.Context, redisURL string, logger watermill.LoggerAdapter) (message.Publisher, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	return publisher, client, nil
}
