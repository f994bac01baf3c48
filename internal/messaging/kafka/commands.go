package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/leafmarket/pointshop/internal/domain"
)

// Topics для Kafka.
const (
	// TopicPurchaseCommands — команды покупки, опубликованные при допуске заказа.
	TopicPurchaseCommands = "pointshop.purchase.commands"
	// TopicDeadLetterQueue — команды, исчерпавшие попытки расчёта.
	TopicDeadLetterQueue = "pointshop.purchase.dlq"
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ParsePurchaseCommand разбирает PurchaseCommand из сообщения очереди.
func ParsePurchaseCommand(message *sarama.ConsumerMessage) (domain.PurchaseCommand, error) {
	var cmd domain.PurchaseCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return domain.PurchaseCommand{}, fmt.Errorf("unmarshal purchase command: %w", err)
	}
	return cmd, nil
}

// EncodePurchaseCommand сериализует команду в тело сообщения очереди.
func EncodePurchaseCommand(cmd domain.PurchaseCommand) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal purchase command: %w", err)
	}
	return payload, nil
}
