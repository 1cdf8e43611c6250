package broker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the producing side of a topic; *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the consuming side of a topic; *kafka.Reader satisfies it.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers      []string
	Topic        string
	GroupID      string
	BatchTimeout time.Duration
}

// NewWriter returns a synchronous writer for one topic.
func NewWriter(cfg Config) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
}

// NewReader returns a consumer-group reader for one topic. Offsets are
// committed as messages are read.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

var (
	_ MessageWriter = (*kafka.Writer)(nil)
	_ MessageReader = (*kafka.Reader)(nil)
)
