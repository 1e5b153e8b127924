// Package kafka publishes audit events to a Kafka topic so downstream
// compliance and SIEM consumers can subscribe without reading the ledger.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "ledgerd/pkg/platform/audit"
)

// Store produces one JSON record per audit event, keyed by tenant so a
// tenant's events stay ordered within a partition.
type Store struct {
	client *kgo.Client
	topic  string
}

// New constructs a Kafka-backed audit store. A nil client yields a no-op
// store, so callers can wire it unconditionally.
func New(client *kgo.Client, topic string) *Store {
	return &Store{client: client, topic: topic}
}

// Dial connects to the given brokers.
func Dial(brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("dial kafka: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if s == nil || s.client == nil {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.TenantID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (s *Store) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Close()
}
