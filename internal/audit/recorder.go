package audit

import (
	"context"
	"time"

	"github.com/nerrad567/device-console/internal/infrastructure/logging"
)

// recorderBuffer is how many entries may wait for the writer.
// Entries beyond this are dropped to avoid back-pressure on requests.
const recorderBuffer = 256

// drainTimeout bounds the final flush after Run's context ends.
const drainTimeout = 5 * time.Second

// Recorder writes audit entries asynchronously and serially, which suits
// SQLite's single writer. Recording never blocks the caller.
type Recorder struct {
	repo   Repository
	ch     chan *AuditLog
	logger *logging.Logger
}

// NewRecorder creates a Recorder over repo. Call Run to start writing.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		repo:   repo,
		ch:     make(chan *AuditLog, recorderBuffer),
		logger: logger.With("component", "audit"),
	}
}

// Record enqueues an entry. If the buffer is full the entry is dropped
// and a warning is logged.
func (r *Recorder) Record(entry *AuditLog) {
	if r == nil || entry == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit buffer full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left. It always returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.ch:
			r.write(context.Background(), entry)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case entry := <-r.ch:
			r.write(ctx, entry)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, entry *AuditLog) {
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
