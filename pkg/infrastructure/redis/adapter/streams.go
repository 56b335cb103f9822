package adapter

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
)

// NewStreamPubSub builds a Redis Streams publisher and a consumer-group
// subscriber sharing one client.
func NewStreamPubSub(client redis.UniversalClient, consumerGroup, consumer string, logger watermill.LoggerAdapter) (*redisstream.Publisher, *redisstream.Subscriber, error) {
	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
		Consumer:      consumer,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
