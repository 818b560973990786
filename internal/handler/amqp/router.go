package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/service"
	"go.uber.org/fx"
)

const (
	// ------------------- TOPICS -------------------
	TopicSendMessage = "im_presence.message.send.v1"

	// ------------------- POISON -------------------
	SendMessagePoisonTopic = "im_presence.message.send.v1.poison"
)

type MessageHandler struct {
	logger  *slog.Logger
	relayer service.Relayer
}

func NewMessageHandler(logger *slog.Logger, relayer service.Relayer) *MessageHandler {
	return &MessageHandler{logger: logger, relayer: relayer}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	// [ROUTER_LEVEL] Panics in middleware itself must not kill the consumer.
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber, pub message.Publisher) error {
	poison, err := middleware.PoisonQueue(pub, SendMessagePoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_SEND_MESSAGE", TopicSendMessage, Bind(h, h.OnSendMessageV1)},
	}

	for _, c := range configs {
		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(h.logger).Middleware,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "topic", TopicSendMessage)
	return nil
}

// RunRouter starts consuming on fx start and closes the router on stop.
func RunRouter(lc fx.Lifecycle, cfg *config.Config, router *message.Router, h *MessageHandler, sub message.Subscriber, pub message.Publisher, logger *slog.Logger) error {
	if !cfg.PubSub.Consume {
		logger.Info("AMQP_CONSUMER_DISABLED")
		return nil
	}
	if err := h.RegisterHandlers(router, sub, pub); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("AMQP_ROUTER_STOPPED", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
	return nil
}
