package fulfillment

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/leafmarket/pointshop/internal/messaging/kafka"
)

// NewCommandHandler адаптирует процессор под обработчик Kafka-сообщений.
// Ошибка декодирования возвращается потребителю: такое сообщение уйдёт
// в DLQ после исчерпания повторов.
func NewCommandHandler(processor *Processor) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		cmd, err := kafka.ParsePurchaseCommand(message)
		if err != nil {
			return fmt.Errorf("decode purchase command: %w", err)
		}

		return processor.Process(ctx, cmd)
	}
}
