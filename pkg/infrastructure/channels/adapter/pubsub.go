package adapter

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewPubSub cria um pub/sub em memória. O mesmo valor serve como
// message.Publisher e message.Subscriber. Publish espera o ack dos
// assinantes, o que mantém a ordem de entrega por tópico.
func NewPubSub(buffer int64, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            buffer,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}
