package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/standingbank/backend/src/model"
	"github.com/username/standingbank/backend/src/models"
	"github.com/username/standingbank/backend/src/testutil"
)

type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written []string
}

func (w *blockingWriter) Write(_ context.Context, e *models.AuditEvent) error {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, e.Action)
	return nil
}

type failingWriter struct{}

func (failingWriter) Write(context.Context, *models.AuditEvent) error {
	return errors.New("audit store unavailable")
}

func TestRecorder_WritesToSQL(t *testing.T) {
	db := testutil.NewTestDB(t)
	r := NewRecorder(NewSQLWriter(db), 16)

	r.LogTransaction(context.Background(), ActionTransactionCompleted, "ref-1", map[string]any{"amount": "10.00"})
	r.LogSystem(context.Background(), "warn", "scheduler pass skipped", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	events, err := model.ListAuditEventsByReference(context.Background(), db, "ref-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionTransactionCompleted, events[0].Action)
	assert.Equal(t, "10.00", events[0].Details["amount"])
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	r := NewRecorder(w, 1)

	// the writer holds one event, the buffer holds one more, the rest drop
	for i := 0; i < 10; i++ {
		r.LogTransaction(context.Background(), ActionTransactionCompleted, "ref", nil)
	}
	assert.Eventually(t, func() bool { return r.Dropped() >= 8 }, time.Second, 10*time.Millisecond)

	close(w.release)
	require.NoError(t, r.Close(context.Background()))
	assert.LessOrEqual(t, len(w.written), 2)
}

func TestRecorder_WriterFailureIsContained(t *testing.T) {
	r := NewRecorder(failingWriter{}, 4)
	r.LogTransaction(context.Background(), ActionTransactionFailed, "ref", nil)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, int64(1), r.Failed())
}

func TestRecorder_AfterCloseIsDropped(t *testing.T) {
	r := NewRecorder(failingWriter{}, 4)
	require.NoError(t, r.Close(context.Background()))
	r.LogSystem(context.Background(), "info", "late", nil)
	assert.Equal(t, int64(1), r.Dropped())
}

func TestMemorySink(t *testing.T) {
	m := NewMemorySink()
	m.LogTransaction(context.Background(), ActionOrderExecuted, "so-1", nil)
	m.LogTransaction(context.Background(), ActionOrderCompleted, "so-1", nil)
	assert.Equal(t, []string{ActionOrderExecuted, ActionOrderCompleted}, m.Actions("so-1"))
	assert.Equal(t, 1, m.Count(ActionOrderCompleted))
}
