package audit

import (
	"context"

	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/internal/domain/service"
	"github.com/crewbill/keysvc/pkg/logger"
)

// LogAuditService writes rotation events to the structured log. Used when
// Kafka is disabled; single-instance deployments lose nothing by it.
type LogAuditService struct {
	logger logger.Logger
}

func NewLogAuditService(log logger.Logger) service.AuditService {
	return &LogAuditService{logger: log.WithComponent("audit_log")}
}

func (s *LogAuditService) LogRotation(ctx context.Context, event models.RotationEvent) error {
	s.logger.Info(ctx, "rotation event",
		logger.String("event_id", event.EventID),
		logger.String("event_type", string(event.EventType)),
		logger.String("new_key_id", event.NewKeyID),
		logger.String("previous_key_id", event.PreviousKeyID),
		logger.String("rotation_type", string(event.RotationType)),
		logger.String("reason", event.Reason),
		logger.String("actor", event.Actor),
		logger.Time("occurred_at", event.OccurredAt))
	return nil
}

func (s *LogAuditService) Close() error { return nil }

var _ service.AuditService = (*LogAuditService)(nil)
