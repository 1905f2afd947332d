package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	stderrors "errors"

	"github.com/segmentio/kafka-go"

	"github.com/corneadesci/funding-service/internal/models"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

// TransactionVerifier is the slice of the funding service the consumer
// needs: apply one externally verified transaction hash.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, txHash string) (*models.Funding, error)
}

// Consumer applies verification events from the chain watcher to the
// funding reconciliation path.
type Consumer struct {
	reader   *kafka.Reader
	verifier TransactionVerifier
}

func NewConsumer(brokers []string, topic, groupID string, verifier TransactionVerifier) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		verifier: verifier,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))

		var event struct {
			TransactionHash string `json:"transaction_hash"`
		}
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal verification event", "error", err)
			continue
		}
		if event.TransactionHash == "" {
			slog.Error("verification event missing transaction_hash")
			continue
		}

		funding, err := c.verifier.VerifyTransaction(ctx, event.TransactionHash)
		if err != nil {
			// Already-verified hashes are expected under at-least-once
			// delivery; anything else is a real failure.
			if stderrors.Is(err, pkgerrors.ErrTransactionNotFound) {
				slog.Warn("verification event skipped", "tx_hash", event.TransactionHash, "error", err)
			} else {
				slog.Error("failed to apply verification event", "tx_hash", event.TransactionHash, "error", err)
			}
			continue
		}

		slog.Info("verification event applied", "tx_hash", event.TransactionHash, "funding_id", funding.ID, "research_id", funding.ResearchID)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
