package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/metrics"
	"draqua/backend/internal/store"
)

// PersistenceError reports a document that could not be written. The
// in-memory state stays authoritative; the document is retried.
type PersistenceError struct {
	Document string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Document, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type WriterConfig struct {
	WriteTimeout  time.Duration
	RetryInterval time.Duration
	// Consecutive failed writes before the breaker opens.
	FailureThreshold uint32
	// How long the breaker stays open before a trial write.
	OpenTimeout time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		WriteTimeout:     5 * time.Second,
		RetryInterval:    10 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// Writer persists documents in the background. Save only records the latest
// encoding of each changed document and wakes the write loop, so callers
// never wait on storage.
type Writer struct {
	docs    store.DocumentStore
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     WriterConfig

	mu          sync.Mutex
	pending     map[string][]byte
	inflight    map[string]struct{}
	lastErr     error
	lastSavedAt time.Time
	started     bool
	closed      bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewWriter(docs store.DocumentStore, cfg WriterConfig, logger *slog.Logger, m *metrics.Metrics) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaults.RetryInterval
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "document-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Writer{
		docs:     docs,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		pending:  make(map[string][]byte),
		inflight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Save queues the given documents for writing. Values are encoded
// immediately; a later Save of the same key replaces an unwritten one.
func (w *Writer) Save(changed map[string]any) {
	encoded := make(map[string][]byte, len(changed))
	for key, value := range changed {
		body, err := json.Marshal(value)
		if err != nil {
			perr := &PersistenceError{Document: key, Err: err}
			w.logger.Error("document not encoded", "document", key, "error", err)
			w.metrics.DocumentWritten(key, perr)
			w.mu.Lock()
			w.lastErr = perr
			w.mu.Unlock()
			continue
		}
		encoded[key] = body
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("save after close dropped", "documents", len(encoded))
		return
	}
	for key, body := range encoded {
		w.pending[key] = body
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start runs the write loop until Close is called or ctx is cancelled.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.run(ctx)
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)

	var retry <-chan time.Time
	for {
		select {
		case <-w.wake:
		case <-retry:
		case <-w.stop:
			w.flush(context.Background())
			return
		case <-ctx.Done():
			w.flush(context.Background())
			return
		}

		if w.flush(ctx) {
			retry = nil
		} else {
			retry = time.After(w.cfg.RetryInterval)
		}
	}
}

// Close writes whatever is still pending and stops the loop.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	if !started {
		w.flush(ctx)
		return w.LastError()
	}

	close(w.stop)
	select {
	case <-w.done:
		return w.LastError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flush writes every pending document once and reports whether all of them
// were stored.
func (w *Writer) flush(ctx context.Context) bool {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string][]byte)
	for key := range batch {
		w.inflight[key] = struct{}{}
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return true
	}

	keys := make([]string, 0, len(batch))
	for key := range batch {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var failed error
	for _, key := range keys {
		body := batch[key]
		err := w.write(ctx, key, body)
		w.metrics.DocumentWritten(key, err)

		w.mu.Lock()
		delete(w.inflight, key)
		if err != nil {
			failed = &PersistenceError{Document: key, Err: err}
			if _, superseded := w.pending[key]; !superseded {
				w.pending[key] = body
			}
		} else {
			w.lastSavedAt = time.Now().UTC()
		}
		w.mu.Unlock()

		if err != nil {
			w.logger.Error("document not saved; in-memory state is not durable", "document", key, "error", err)
		} else {
			w.logger.Debug("document saved", "document", key, "bytes", len(body))
		}
	}

	w.mu.Lock()
	w.lastErr = failed
	w.mu.Unlock()
	return failed == nil
}

func (w *Writer) write(ctx context.Context, key string, body []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	defer cancel()

	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.docs.Put(writeCtx, key, body)
	})
	return err
}

// LastError returns the failure of the most recent write round, if any.
func (w *Writer) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Writer) Status() domain.PersistenceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending := make([]string, 0, len(w.pending)+len(w.inflight))
	for key := range w.pending {
		pending = append(pending, key)
	}
	for key := range w.inflight {
		if _, dup := w.pending[key]; !dup {
			pending = append(pending, key)
		}
	}
	slices.Sort(pending)

	status := domain.PersistenceStatus{
		Durable: len(pending) == 0 && w.lastErr == nil,
		Pending: pending,
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	if !w.lastSavedAt.IsZero() {
		saved := w.lastSavedAt
		status.LastSavedAt = &saved
	}
	return status
}
