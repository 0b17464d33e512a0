package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Событие завершенной покупки от платежного контура
type PurchaseEvent struct {
	PurchaseID string `json:"purchaseId"`
}

type PurchaseReader struct {
	reader *kafka.Reader
}

func NewPurchaseReader(topic string) (reader *PurchaseReader, err error) {
	// config
	kafkaurl := os.Getenv("KAFKA_PURCHASES_URL")
	if kafkaurl == "" {
		return nil, fmt.Errorf("env KAFKA_PURCHASES_URL is not set")
	}
	kafkaport := os.Getenv("KAFKA_PURCHASES_PORT")
	if kafkaport == "" {
		return nil, fmt.Errorf("env KAFKA_PURCHASES_PORT is not set")
	}

	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{kafkaurl + ":" + kafkaport},
		Topic:   topic,
		GroupID: "purchases_mlm",
	}
	return &PurchaseReader{kafka.NewReader(kafkaconfig)}, nil
}

func (k *PurchaseReader) GetNewPurchase(ctx context.Context) (purchaseID uuid.UUID, err error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	event := &PurchaseEvent{}
	err = json.Unmarshal(msg.Value, event)
	if err != nil {
		return uuid.Nil, err
	}
	purchaseID, err = uuid.Parse(event.PurchaseID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid purchase event: %w", err)
	}
	return purchaseID, nil
}

func (k *PurchaseReader) CloseReader() {
	k.reader.Close()
}
