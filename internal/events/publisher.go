package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bulk-upload-service/internal/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

const (
	StreamBulkUploads       = "BULK_UPLOADS"
	SubjectBatchCommitted   = "bulkupload.batch.committed"
	EventTypeBatchCommitted = "bulkupload.batch.committed"
)

// BatchCommittedEvent carries a commit summary to the seller report composer
type BatchCommittedEvent struct {
	EventType string                `json:"eventType"`
	SourceID  string                `json:"sourceId"`
	Timestamp time.Time             `json:"timestamp"`
	Summary   *models.CommitSummary `json:"summary"`
}

// Publisher sends upload events to NATS JetStream
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Entry
}

// NewPublisher connects to NATS and makes sure the uploads stream exists
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	log := logger.WithField("component", "bulk-upload-events")

	nc, err := nats.Connect(natsURL,
		nats.Name("bulk-upload-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectBufSize(8*1024*1024),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("[NATS] Reconnected to %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("[NATS] Disconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("[NATS] Connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamBulkUploads,
		Subjects:  []string{"bulkupload.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to ensure bulk upload stream (may already exist)")
	}

	return &Publisher{nc: nc, js: js, logger: log}, nil
}

// Close drains the NATS connection
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Drain()
	}
}

// NewBatchCommittedEvent wraps a summary in an event envelope
func NewBatchCommittedEvent(summary *models.CommitSummary) *BatchCommittedEvent {
	return &BatchCommittedEvent{
		EventType: EventTypeBatchCommitted,
		SourceID:  uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Summary:   summary,
	}
}

// PublishBatchCommitted publishes the summary asynchronously; failures are logged only
func (p *Publisher) PublishBatchCommitted(ctx context.Context, summary *models.CommitSummary) {
	if p == nil || p.js == nil || summary == nil {
		return
	}
	event := NewBatchCommittedEvent(summary)

	// Publish asynchronously to not block the commit response
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fields := logrus.Fields{
			"eventType": event.EventType,
			"batchID":   summary.BatchID,
			"sellerID":  summary.SellerID,
		}

		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithFields(fields).WithError(err).Error("Failed to encode batch event")
			return
		}

		// The batch ID dedupes redeliveries inside the stream's duplicate window
		if _, err := p.js.Publish(pubCtx, SubjectBatchCommitted, data, jetstream.WithMsgID(summary.BatchID.String())); err != nil {
			p.logger.WithFields(fields).WithError(err).Error("Failed to publish batch event")
			return
		}
		p.logger.WithFields(fields).Info("Batch event published successfully")
	}()
}
