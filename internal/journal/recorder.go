package journal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"overlaycast/internal/channel"
	"overlaycast/internal/logging"
)

const (
	// DefaultRecorderBuffer bounds acks waiting to be written.
	DefaultRecorderBuffer = 256
	pruneInterval         = time.Hour
)

// Recorder writes channel acks to the journal off the dispatch path.
type Recorder struct {
	journal   *Journal
	retention time.Duration
	entries   chan Entry
	dropped   atomic.Uint64
	logger    *slog.Logger
}

// NewRecorder builds a recorder. A retention of zero keeps entries forever.
func NewRecorder(j *Journal, retention time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{
		journal:   j,
		retention: retention,
		entries:   make(chan Entry, DefaultRecorderBuffer),
		logger:    logging.NewComponentLogger(logger, "journal"),
	}
}

// ObserveAck queues an ack for writing. It never blocks; when the buffer is
// full the ack is counted as dropped.
func (r *Recorder) ObserveAck(evt channel.AckEvent) {
	e := Entry{
		Channel:  evt.Channel,
		EventID:  evt.EventID,
		Type:     evt.Type,
		Source:   string(evt.Source),
		Success:  evt.Success,
		Duration: evt.Duration,
		At:       evt.At,
	}
	if evt.Err != nil {
		e.Error = evt.Err.Error()
	}
	select {
	case r.entries <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many acks were not written because the buffer was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run writes queued entries and prunes expired ones until ctx ends. Entries
// still queued at shutdown are flushed.
func (r *Recorder) Run(ctx context.Context) error {
	var prune <-chan time.Time
	if r.retention > 0 {
		r.prune(ctx)
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case e := <-r.entries:
			r.write(ctx, e)
		case <-prune:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if _, err := r.journal.Record(ctx, e); err != nil {
		logging.WarnWithContext(r.logger, "journal write failed", "journal_write_failed",
			logging.String(logging.FieldChannel, e.Channel),
			logging.String(logging.FieldEventID, e.EventID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "event missing from the journal"),
		)
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case e := <-r.entries:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	removed, err := r.journal.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Warn("journal prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		r.logger.Info("journal pruned", logging.Int64("removed", removed))
	}
}
