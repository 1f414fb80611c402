package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/username/standingbank/backend/src/logger"
	"github.com/username/standingbank/backend/src/models"
)

const writeTimeout = 5 * time.Second

// Recorder is an asynchronous Sink. Events are queued on a bounded buffer and
// written by a single goroutine; when the buffer is full the event is dropped
// and counted rather than blocking the caller.
type Recorder struct {
	writer Writer
	events chan *models.AuditEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	failed  atomic.Int64
	now     func() time.Time
}

// NewRecorder starts the background writer.
func NewRecorder(w Writer, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	r := &Recorder{
		writer: w,
		events: make(chan *models.AuditEvent, bufferSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go r.run()
	return r
}

func (r *Recorder) LogTransaction(ctx context.Context, action, reference string, details map[string]any) {
	r.enqueue(ctx, &models.AuditEvent{
		Kind:      models.AuditKindTransaction,
		Action:    action,
		Reference: reference,
		Details:   details,
	})
}

func (r *Recorder) LogSystem(ctx context.Context, level, message string, meta map[string]any) {
	r.enqueue(ctx, &models.AuditEvent{
		Kind:    models.AuditKindSystem,
		Level:   level,
		Message: message,
		Details: meta,
	})
}

func (r *Recorder) enqueue(ctx context.Context, e *models.AuditEvent) {
	e.ID = uuid.NewString()
	e.CreatedAt = r.now().UTC()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
		logger.FromContext(ctx).Warn("Audit buffer full, event dropped", "action", e.Action, "reference", e.Reference)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.writer.Write(ctx, e); err != nil {
			r.failed.Add(1)
			logger.L.Error("Failed to write audit event", "action", e.Action, "reference", e.Reference, "error", err)
		}
		cancel()
	}
}

// Dropped is the number of events lost to a full buffer or a closed recorder.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Failed is the number of events the writer rejected.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("audit recorder did not drain"), ctx.Err())
	}
}
