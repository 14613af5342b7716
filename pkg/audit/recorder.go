package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"routecodex-hq/routecodex/pkg/kernel"
)

// RecorderConfig controls the async recorder.
type RecorderConfig struct {
	// Buffer is the async write channel size. Default: 1000
	Buffer int

	// WriteTimeout bounds each storage write. Default: 5s
	WriteTimeout time.Duration
}

func (c *RecorderConfig) applyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 1000
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Recorder turns kernel snapshots into stored records. Record never
// blocks: when the buffer is full the snapshot is dropped and counted,
// which keeps audit pressure away from the request path.
type Recorder struct {
	store   Store
	cfg     RecorderConfig
	ch      chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	mu      sync.Mutex
	dropped int64
}

var _ kernel.SnapshotSink = (*Recorder)(nil)

// NewRecorder starts the background write worker.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	cfg.applyDefaults()
	r := &Recorder{
		store:  store,
		cfg:    cfg,
		ch:     make(chan *Record, cfg.Buffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "audit.recorder"),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record converts a snapshot and enqueues it for async writing.
func (r *Recorder) Record(s kernel.Snapshot) {
	sum := sha256.Sum256(s.Body)
	rec := &Record{
		ID:          uuid.NewString(),
		RequestID:   s.RequestID,
		ProviderKey: s.ProviderKey,
		Phase:       s.Phase,
		Method:      s.Method,
		Endpoint:    s.URL,
		StatusCode:  s.StatusCode,
		BodyHash:    hex.EncodeToString(sum[:]),
		BodySize:    len(s.Body),
		Timestamp:   s.Timestamp,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	select {
	case r.ch <- rec:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Warn("audit buffer full, snapshot dropped",
			"request_id", rec.RequestID,
			"dropped_total", dropped,
		)
	}
}

// Dropped reports how many snapshots were discarded due to backpressure.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close drains pending records and stops the worker.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.ch:
			r.write(rec)
		case <-r.done:
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case rec := <-r.ch:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("audit write failed",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"error", err,
		)
	}
}
