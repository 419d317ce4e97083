package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	hybridQueueSize     = 10000
	hybridBatchSize     = 500
	hybridFlushInterval = 5 * time.Second
)

var errStoreClosed = errors.New("store is closed")

// queuedRecord is a pending durable write. A nil record deletes name.
type queuedRecord struct {
	doc    string
	name   string
	record *ObjectRecord
}

// HybridStore combines two stores. The fast store (Redis) is written
// immediately; the durable store (Postgres) is written in batches by the
// writer StartBatchWriter launches. Loads try the fast store first.
type HybridStore struct {
	fast      Store
	durable   Store
	writeChan chan queuedRecord
	stopChan  chan struct{}
	wg        sync.WaitGroup
	startMu   sync.Mutex
	closed    atomic.Bool
	logger    *slog.Logger
}

func NewHybridStore(fast, durable Store, logger *slog.Logger) *HybridStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridStore{
		fast:      fast,
		durable:   durable,
		writeChan: make(chan queuedRecord, hybridQueueSize),
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

// SaveObjects writes to the fast store, then queues the records for the
// durable one. A full queue falls back to a direct durable write.
func (h *HybridStore) SaveObjects(ctx context.Context, doc string, records []ObjectRecord) error {
	if h.closed.Load() {
		return errStoreClosed
	}
	if err := h.fast.SaveObjects(ctx, doc, records); err != nil {
		h.logger.Error("redis_save_failed", "document", doc, "count", len(records), "error", err)
		return err
	}

	queueDepth := len(h.writeChan)
	if queueDepth > cap(h.writeChan)/2 {
		h.logger.Warn("write_queue_high_watermark", "queue_depth", queueDepth)
	}

	ops := make([]queuedRecord, len(records))
	for i := range records {
		ops[i] = queuedRecord{doc: doc, name: records[i].Name, record: &records[i]}
	}
	return h.enqueue(ctx, ops)
}

// DeleteObjects removes from the fast store now and from the durable one
// in queue order, so an earlier queued save cannot bring the object back.
func (h *HybridStore) DeleteObjects(ctx context.Context, doc string, names []string) error {
	if h.closed.Load() {
		return errStoreClosed
	}
	if err := h.fast.DeleteObjects(ctx, doc, names); err != nil {
		h.logger.Error("redis_delete_failed", "error", err)
	}
	ops := make([]queuedRecord, len(names))
	for i, name := range names {
		ops[i] = queuedRecord{doc: doc, name: name}
	}
	return h.enqueue(ctx, ops)
}

// enqueue applies ops directly when the queue is full (backpressure
// fallback); what was already queued is flushed first to keep the order
func (h *HybridStore) enqueue(ctx context.Context, ops []queuedRecord) error {
	for i, op := range ops {
		select {
		case h.writeChan <- op:
		default:
			h.logger.Warn("write_queue_full", "document", op.doc)
			directCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			err := h.flushBatchContext(directCtx, h.drainInto(nil), ops[i:])
			cancel()
			if err != nil {
				h.logger.Error("postgres_direct_write_failed", "error", err)
				return err
			}
			return nil
		}
	}
	return nil
}

// LoadObjects reads the fast store and falls back to the durable one,
// warming the fast store with what it found.
func (h *HybridStore) LoadObjects(ctx context.Context, doc string) ([]ObjectRecord, error) {
	records, err := h.fast.LoadObjects(ctx, doc)
	if err == nil && len(records) > 0 {
		return records, nil
	}

	h.logger.Debug("redis_miss_fallback_to_postgres", "document", doc)
	records, err = h.durable.LoadObjects(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if werr := h.fast.SaveObjects(ctx, doc, records); werr != nil {
			h.logger.Warn("cache_warm_failed", "document", doc, "error", werr)
		}
	}
	return records, nil
}

// StartBatchWriter launches the goroutine that writes queued records to
// the durable store until ctx ends or the store is closed. It does nothing
// on a closed store.
func (h *HybridStore) StartBatchWriter(ctx context.Context) {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.closed.Load() {
		return
	}
	h.wg.Add(1)
	go h.runBatchWriter(ctx)
}

func (h *HybridStore) runBatchWriter(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(hybridFlushInterval)
	defer ticker.Stop()

	batch := make([]queuedRecord, 0, hybridBatchSize)
	h.logger.Info("batch_writer_started", "interval", hybridFlushInterval.String(), "batch_size", hybridBatchSize)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("batch_writer_shutting_down", "remaining", len(batch))
			h.flushBatch(h.drainInto(batch))
			return
		case <-h.stopChan:
			h.logger.Info("batch_writer_shutting_down", "remaining", len(batch))
			h.flushBatch(h.drainInto(batch))
			return
		case q := <-h.writeChan:
			batch = append(batch, q)
			if len(batch) >= hybridBatchSize {
				h.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.logger.Debug("periodic_batch_flush", "count", len(batch))
				h.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// drainInto appends whatever is still queued to batch
func (h *HybridStore) drainInto(batch []queuedRecord) []queuedRecord {
	for {
		select {
		case q := <-h.writeChan:
			batch = append(batch, q)
		default:
			return batch
		}
	}
}

func (h *HybridStore) flushBatch(batch []queuedRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.flushBatchContext(ctx, batch); err != nil {
		h.logger.Error("batch_insert_failed", "count", len(batch), "error", err)
	}
}

// flushBatchContext writes the ops in order: the last op on an object
// decides whether it is saved or deleted
func (h *HybridStore) flushBatchContext(ctx context.Context, batches ...[]queuedRecord) error {
	type opKey struct{ doc, name string }
	var order []opKey
	final := make(map[opKey]*ObjectRecord)
	for _, batch := range batches {
		for _, q := range batch {
			key := opKey{q.doc, q.name}
			if _, seen := final[key]; !seen {
				order = append(order, key)
			}
			final[key] = q.record
		}
	}
	if len(order) == 0 {
		return nil
	}

	saves := make(map[string][]ObjectRecord)
	deletes := make(map[string][]string)
	for _, key := range order {
		if rec := final[key]; rec != nil {
			saves[key.doc] = append(saves[key.doc], *rec)
		} else {
			deletes[key.doc] = append(deletes[key.doc], key.name)
		}
	}

	start := time.Now()
	var errs []error
	for doc, names := range deletes {
		if err := h.durable.DeleteObjects(ctx, doc, names); err != nil {
			errs = append(errs, err)
		}
	}
	for doc, records := range saves {
		if err := h.durable.SaveObjects(ctx, doc, records); err != nil {
			errs = append(errs, err)
			continue
		}
		h.logger.Debug("batch_insert_success",
			"document", doc,
			"count", len(records),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return errors.Join(errs...)
}

// Close stops the batch writer after it flushed, then closes both stores
func (h *HybridStore) Close() error {
	h.startMu.Lock()
	closing := h.closed.CompareAndSwap(false, true)
	h.startMu.Unlock()
	if !closing {
		return nil
	}
	close(h.stopChan)
	h.wg.Wait()
	// nothing left when a writer ran, everything when none did
	h.flushBatch(h.drainInto(nil))

	if err := h.fast.Close(); err != nil {
		h.logger.Error("failed_to_close_redis", "error", err)
	}
	if err := h.durable.Close(); err != nil {
		h.logger.Error("failed_to_close_postgres", "error", err)
	}
	return nil
}
