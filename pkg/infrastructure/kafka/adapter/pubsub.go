package adapter

import (
	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
)

// NewKafkaPubSub builds a sync publisher and a consumer-group subscriber.
// Topics are created on first subscribe with a single partition, which keeps
// per-topic delivery ordered.
func NewKafkaPubSub(brokers []string, consumerGroup string, logger watermill.LoggerAdapter) (*kafka.Publisher, *kafka.Subscriber, error) {
	marshaler := kafka.DefaultMarshaler{}

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaConfig.Version = sarama.V1_0_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.ClientID = consumerGroup

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               brokers,
		Unmarshaler:           marshaler,
		ConsumerGroup:         consumerGroup,
		OverwriteSaramaConfig: saramaConfig,
		InitializeTopicDetails: &sarama.TopicDetail{
			NumPartitions:     1,
			ReplicationFactor: 1,
		},
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, err
	}

	return publisher, subscriber, nil
}
