package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/expensetrack/expense-api/internal/models"
)

type auditSink interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// AuditService appends security-relevant events to the audit trail. A sink
// failure never reaches the caller: the entry is logged and counted instead,
// so the primary operation's outcome stays intact.
type AuditService struct {
	sink    auditSink
	logger  *zap.Logger
	metrics *MetricsService
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(sink auditSink, logger *zap.Logger, metrics *MetricsService) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{sink: sink, logger: logger, metrics: metrics}
}

// Record appends one audit entry. userID is nil when no actor could be
// resolved, e.g. a failed login with an unknown email.
func (s *AuditService) Record(ctx context.Context, userID *string, action string, reqCtx models.RequestContext, status models.AuditStatus, details map[string]interface{}) {
	entry := &models.AuditLog{
		UserID:    userID,
		Action:    action,
		IPAddress: reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
		Status:    status,
	}
	if len(details) > 0 {
		payload, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("failed to marshal audit details", zap.String("action", action), zap.Error(err))
		} else {
			entry.Details = payload
		}
	}

	if err := s.sink.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log",
			zap.String("action", action),
			zap.Error(err),
		)
		s.metrics.RecordAuditDropped()
	}
}
