package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scolahub/scolarite-api/internal/models"
	"github.com/scolahub/scolarite-api/pkg/jobs"
)

type capturingAuditWriter struct {
	mu      sync.Mutex
	entries []models.AuditLog
	done    chan struct{}
}

func (w *capturingAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, *log)
	close(w.done)
	return nil
}

func TestAuditServiceRecordPersistsAsynchronously(t *testing.T) {
	writer := &capturingAuditWriter{done: make(chan struct{})}
	svc := NewAuditService(writer, jobs.QueueConfig{Workers: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(models.AuditLog{Action: models.AuditActionUserCreate, Resource: "users"})

	select {
	case <-writer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not persisted in time")
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, models.AuditActionUserCreate, entry.Action)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestAuditServiceRecordBeforeStartDoesNotPanic(t *testing.T) {
	writer := &capturingAuditWriter{done: make(chan struct{})}
	svc := NewAuditService(writer, jobs.QueueConfig{Workers: 1}, nil)

	assert.NotPanics(t, func() {
		svc.Record(models.AuditLog{Action: models.AuditActionUserUpdate, Resource: "users"})
	})
}
