package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/domain/auditlog"
)

// AuditSink accepts audit entries without blocking the caller.
type AuditSink interface {
	Record(entry *auditlog.Entry)
}

const auditWriteTimeout = 5 * time.Second

// AsyncAuditSink writes each entry on its own goroutine, detached from the
// request context.
type AsyncAuditSink struct {
	repo   auditlog.Repository
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewAsyncAuditSink(repo auditlog.Repository, logger *zap.Logger) *AsyncAuditSink {
	return &AsyncAuditSink{
		repo:   repo,
		logger: logger.Named("AuditSink"),
	}
}

var _ AuditSink = (*AsyncAuditSink)(nil)

func (s *AsyncAuditSink) Record(entry *auditlog.Entry) {
	s.wg.Add(1)
	go func(e *auditlog.Entry) {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := s.repo.Append(ctx, e); err != nil {
			s.logger.Error("Failed to write audit log entry",
				zap.String("api_key_id", e.APIKeyID.String()),
				zap.Int("status_code", e.StatusCode),
				zap.Error(err),
			)
		}
	}(entry)
}

// Wait blocks until every recorded entry has been written or has failed.
func (s *AsyncAuditSink) Wait() {
	s.wg.Wait()
}
