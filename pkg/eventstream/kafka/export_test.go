package kafka

import (
	"context"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter exposes the writer seam to tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewPublisherWithWriter builds a publisher over a fake writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}
