package kafka

import (
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/leafmarket/pointshop/internal/domain"
)

func TestEncodePurchaseCommand_WireFieldNames(t *testing.T) {
	dealID := int64(5)
	cmd := domain.PurchaseCommand{
		MemberID:       1,
		ProductID:      2,
		DealID:         &dealID,
		Quantity:       3,
		IdempotencyKey: "k1",
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := EncodePurchaseCommand(cmd)
	if err != nil {
		t.Fatalf("EncodePurchaseCommand failed: %v", err)
	}

	body := string(payload)
	for _, field := range []string{"memberId", "sellableUnitId", "dealId", "quantity", "idempotencyKey", "createdAt"} {
		if !strings.Contains(body, `"`+field+`"`) {
			t.Fatalf("wire body misses field %q: %s", field, body)
		}
	}
}

func TestParsePurchaseCommand(t *testing.T) {
	message := &sarama.ConsumerMessage{
		Topic: TopicPurchaseCommands,
		Value: []byte(`{"memberId":1,"sellableUnitId":2,"quantity":3,"idempotencyKey":"k1"}`),
	}

	cmd, err := ParsePurchaseCommand(message)
	if err != nil {
		t.Fatalf("ParsePurchaseCommand failed: %v", err)
	}
	if cmd.MemberID != 1 || cmd.ProductID != 2 || cmd.Quantity != 3 || cmd.IdempotencyKey != "k1" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.DealID != nil {
		t.Fatalf("expected nil deal id, got %v", *cmd.DealID)
	}
	if cmd.Type() != domain.PurchaseTypeNormal {
		t.Fatalf("expected NORMAL purchase, got %s", cmd.Type())
	}

	if _, err := ParsePurchaseCommand(&sarama.ConsumerMessage{Value: []byte("not-json")}); err == nil {
		t.Fatal("expected error on malformed body")
	}
}
