package lib

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"cpass/src/models"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// ScanTopic carries every scan ledger append for out-of-band fraud review.
const ScanTopic = "ticket-scans"

func KafkaProduceMessage(clientId string, topic string, payload map[string]any) error {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
		"client.id":         clientId,
		"acks":              "all",
	})
	if err != nil {
		log.Printf("Error creating producer: %s\n", err.Error())
		return err
	}
	defer p.Close()

	value, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling payload: %s\n", err.Error())
		return err
	}

	err = p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)
	if err != nil {
		log.Printf("Error producing message: %s\n", err.Error())
		return err
	}
	p.Flush(int((5 * time.Second).Milliseconds()))
	return nil
}

func KafkaCreateTopics(topics ...string) ([]kafka.TopicResult, error) {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": os.Getenv("KAFKA_BROKER"),
	})
	if err != nil {
		log.Printf("Error on AdminClient: %s\n", err.Error())
		return nil, err
	}
	defer a.Close()
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:         topic,
			NumPartitions: 10,
		})
	}
	result, err := a.CreateTopics(context.Background(), topicsDef)
	if err != nil {
		log.Printf("Error creating topics: %s\n", err.Error())
		return nil, err
	}
	return result, nil
}

// KafkaScanFeed mirrors scan ledger appends onto the scan topic. Publishing
// is best effort; the ledger row in postgres is the source of truth.
type KafkaScanFeed struct {
	ClientID string
}

func (f KafkaScanFeed) Publish(ctx context.Context, event *models.ScanEvent) error {
	return KafkaProduceMessage(f.ClientID, ScanTopic, map[string]any{
		"id":          event.ID.String(),
		"ticket_id":   event.TicketID,
		"ticket_code": event.TicketCode,
		"scanned_at":  event.ScannedAt,
		"scanned_by":  event.ScannedBy,
		"outcome":     event.Outcome,
	})
}
