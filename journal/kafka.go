package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Event kinds
const (
	KindAlert      = "alert"
	KindGainReport = "gain_report"
	KindRugSkipped = "rug_suppressed"
)

// Event is one journaled engine outcome
type Event struct {
	Kind         string    `json:"kind"`
	Identity     string    `json:"identity"`
	Symbol       string    `json:"symbol"`
	Chain        string    `json:"chain,omitempty"`
	Source       string    `json:"source,omitempty"`
	Score        int       `json:"score,omitempty"`
	Handle       string    `json:"handle,omitempty"`
	MarketCapUSD float64   `json:"marketCapUsd"`
	LiquidityUSD float64   `json:"liquidityUsd"`
	GainPct      string    `json:"gainPct,omitempty"`
	Cycle        string    `json:"cycle,omitempty"`
	At           time.Time `json:"at"`
}

// Journal publishes events to Kafka. A nil *Journal drops everything.
type Journal struct {
	producer sarama.SyncProducer
	topic    string
}

// New connects a sync producer to brokers
func New(brokers []string, topic string) (*Journal, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 5 * time.Second
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("📜 Kafka journal connected")
	return NewWithProducer(producer, topic), nil
}

// NewWithProducer wraps an existing producer
func NewWithProducer(producer sarama.SyncProducer, topic string) *Journal {
	return &Journal{producer: producer, topic: topic}
}

// Publish sends e keyed by identity. Errors are logged and returned.
func (j *Journal) Publish(e Event) error {
	if j == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	partition, offset, err := j.producer.SendMessage(&sarama.ProducerMessage{
		Topic: j.topic,
		Key:   sarama.StringEncoder(e.Identity),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		log.Warn().Err(err).Str("kind", e.Kind).Str("identity", e.Identity).Msg("Journal publish failed")
		return err
	}

	log.Debug().Str("kind", e.Kind).Int32("partition", partition).Int64("offset", offset).Msg("Journaled")
	return nil
}

// Close flushes and closes the producer
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.producer.Close()
}
