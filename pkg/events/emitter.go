// Package events adapts the Kafka producer to the orchestrator's lifecycle
// event contract.
package events

import (
	"context"

	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/models"
)

const (
	TypeSyncStarted   = "sync.started"
	TypeSyncCompleted = "sync.completed"
)

// KafkaEmitter publishes sync lifecycle events through the Kafka producer.
type KafkaEmitter struct {
	producer *kafka.Producer
}

func NewKafkaEmitter(producer *kafka.Producer) *KafkaEmitter {
	return &KafkaEmitter{producer: producer}
}

func (e *KafkaEmitter) SyncStarted(ctx context.Context, integration *models.Integration) error {
	return e.producer.PublishSyncEvent(ctx, &kafka.SyncEventMessage{
		Type:          TypeSyncStarted,
		TenantID:      integration.TenantID.String(),
		IntegrationID: integration.ID.String(),
		Service:       integration.Service,
		Status:        string(models.SyncStatusInProgress),
	})
}

func (e *KafkaEmitter) SyncCompleted(ctx context.Context, integration *models.Integration, outcome *models.SyncOutcome) error {
	return e.producer.PublishSyncEvent(ctx, &kafka.SyncEventMessage{
		Type:          TypeSyncCompleted,
		TenantID:      integration.TenantID.String(),
		IntegrationID: integration.ID.String(),
		Service:       integration.Service,
		Status:        string(outcome.Status),
		Summary:       outcome.ResultSummary(),
	})
}
