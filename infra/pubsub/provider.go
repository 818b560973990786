// Package pubsub builds the watermill publisher/subscriber pair for the configured driver.
package pubsub

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/im-presence-service/config"
)

const (
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"
)

// Provider owns the broker connections for the process lifetime.
type Provider struct {
	driver     string
	publisher  message.Publisher
	subscriber message.Subscriber
}

func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) (*Provider, error) {
	switch cfg.PubSub.Driver {
	case DriverAMQP:
		// [DURABLE_PUBSUB] One fanout exchange per topic, one queue per topic+suffix.
		amqpCfg := amqp.NewDurablePubSubConfig(
			cfg.PubSub.AMQPURI,
			amqp.GenerateQueueNameTopicNameWithSuffix(cfg.PubSub.QueueSuffix),
		)

		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
		}
		return &Provider{driver: DriverAMQP, publisher: pub, subscriber: sub}, nil

	case DriverGoChannel, "":
		// [IN_PROCESS] Default for single-node deployments and tests.
		gc := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Provider{driver: DriverGoChannel, publisher: gc, subscriber: gc}, nil

	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.PubSub.Driver)
	}
}

func (p *Provider) Driver() string                 { return p.driver }
func (p *Provider) Publisher() message.Publisher   { return p.publisher }
func (p *Provider) Subscriber() message.Subscriber { return p.subscriber }

func (p *Provider) Close() error {
	if p.driver == DriverGoChannel {
		// The same GoChannel serves both roles.
		return p.publisher.Close()
	}
	return errors.Join(p.subscriber.Close(), p.publisher.Close())
}
