package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/jobs"
)

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditRecorder is the write side of the audit trail. Recording never blocks
// the calling workflow.
type AuditRecorder interface {
	Record(entry models.AuditLog)
}

// AuditService persists audit entries asynchronously through a worker queue
// so user-facing writes never wait on the audit table.
type AuditService struct {
	writer auditLogWriter
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs AuditService with its own worker queue. Call
// Start before recording and Stop on shutdown.
func NewAuditService(writer auditLogWriter, cfg jobs.QueueConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{writer: writer, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handleJob, cfg)
	return s
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues an audit entry. Failures are logged, never propagated.
func (s *AuditService) Record(entry models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: "audit_log", Payload: entry})
	if err != nil {
		s.logger.Warn("failed to enqueue audit entry",
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *AuditService) handleJob(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload type %T", job.Payload)
	}
	return s.writer.CreateAuditLog(ctx, &entry)
}
