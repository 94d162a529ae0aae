package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/internal/model"
)

const (
	// Envelopes waiting for the journal before new ones are dropped.
	journalBacklog = 1024

	// Time allowed for one journal write.
	journalWriteTimeout = 5 * time.Second
)

type journalRecord struct {
	sessionID    uuid.UUID
	connectionID uint64
	env          model.Envelope
}

// journalWriter appends envelopes to a Journal from its own goroutine so the
// reader loops never wait on storage.
type journalWriter struct {
	journal Journal
	records chan journalRecord
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
}

func newJournalWriter(journal Journal, backlog int, logger zerolog.Logger) *journalWriter {
	w := &journalWriter{
		journal: journal,
		records: make(chan journalRecord, backlog),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go w.run()
	return w
}

// enqueue never blocks. Records arriving after Close or while the backlog is
// full are dropped.
func (w *journalWriter) enqueue(rec journalRecord) {
	select {
	case <-w.stop:
		return
	default:
	}

	select {
	case w.records <- rec:
	default:
		w.logger.Warn().
			Str("session", rec.sessionID.String()).
			Str("op", string(rec.env.Op())).
			Msg("journal backlog full, dropping event")
	}
}

func (w *journalWriter) run() {
	defer close(w.done)

	for {
		select {
		case rec := <-w.records:
			w.write(rec)
		case <-w.stop:
			for {
				select {
				case rec := <-w.records:
					w.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *journalWriter) write(rec journalRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := w.journal.Record(ctx, rec.sessionID, rec.connectionID, rec.env); err != nil {
		w.logger.Error().
			Err(err).
			Str("session", rec.sessionID.String()).
			Str("op", string(rec.env.Op())).
			Msg("failed to journal event")
	}
}

// Close writes out the backlog and waits for the writer to exit.
func (w *journalWriter) Close() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}
