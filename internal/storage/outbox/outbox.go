package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
)

var keyPrefix = []byte("f/")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("outbox closed")

// Config configures the spool.
type Config struct {
	// Dir is the Badger directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps frames in memory only.
	InMemory bool

	// SyncWrites fsyncs every enqueue.
	SyncWrites bool

	// MaxFrames bounds the spool. Zero means unbounded.
	MaxFrames int

	// GCInterval is the value log GC period. Zero uses 10m.
	GCInterval time.Duration
}

// Outbox is a durable FIFO of envelope frames.
//
// @design DS-0105
type Outbox struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	depth  atomic.Int64
	closed atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens or creates the spool and counts frames left from a previous run.
func Open(cfg Config, logger *slog.Logger) (*Outbox, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, fmt.Errorf("outbox: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("outbox: open: %w", err)
	}

	o := &Outbox{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	n, err := o.count()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox: count: %w", err)
	}
	o.depth.Store(int64(n))

	if cfg.InMemory {
		close(o.doneCh)
	} else {
		go o.gcLoop()
	}

	logger.Info("outbox opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "pending", n)
	return o, nil
}

func frameKey(id ulid.ULID) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(id))
	key = append(key, keyPrefix...)
	return append(key, id[:]...)
}

// Enqueue stores a frame under its message id. When the spool is full the
// oldest frame is dropped.
func (o *Outbox) Enqueue(ctx context.Context, id ulid.ULID, frame []byte) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if o.cfg.MaxFrames > 0 && o.depth.Load() >= int64(o.cfg.MaxFrames) {
		dropped, err := o.dropOldest()
		if err != nil {
			return fmt.Errorf("outbox: drop oldest: %w", err)
		}
		o.logger.Warn("outbox full, dropped oldest frame", "message_id", dropped.String())
	}

	if err := o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(frameKey(id), frame)
	}); err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	o.depth.Add(1)
	return nil
}

// Drain hands frames to send in id order, deleting each one send accepts.
// It stops at the first send error, leaving that frame queued, and
// returns how many frames were delivered.
func (o *Outbox) Drain(ctx context.Context, send func(id ulid.ULID, frame []byte) error) (int, error) {
	if o.closed.Load() {
		return 0, ErrClosed
	}

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		id, frame, ok, err := o.peek()
		if err != nil {
			return sent, fmt.Errorf("outbox: peek: %w", err)
		}
		if !ok {
			return sent, nil
		}
		if err := send(id, frame); err != nil {
			return sent, err
		}
		if err := o.delete(id); err != nil {
			return sent, fmt.Errorf("outbox: ack %s: %w", id, err)
		}
		sent++
	}
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	return int(o.depth.Load())
}

func (o *Outbox) peek() (ulid.ULID, []byte, bool, error) {
	var (
		id    ulid.ULID
		frame []byte
		found bool
	)
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		opts.PrefetchSize = 1
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		copy(id[:], item.Key()[len(keyPrefix):])
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		frame = v
		found = true
		return nil
	})
	return id, frame, found, err
}

func (o *Outbox) delete(id ulid.ULID) error {
	if err := o.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(frameKey(id))
	}); err != nil {
		return err
	}
	o.depth.Add(-1)
	return nil
}

func (o *Outbox) dropOldest() (ulid.ULID, error) {
	id, _, ok, err := o.peek()
	if err != nil || !ok {
		return id, err
	}
	return id, o.delete(id)
}

func (o *Outbox) count() (int, error) {
	n := 0
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close stops GC and closes the database.
func (o *Outbox) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(o.stopCh)
	<-o.doneCh

	if err := o.db.Close(); err != nil {
		return fmt.Errorf("outbox: close: %w", err)
	}
	o.logger.Info("outbox closed", "pending", o.Len())
	return nil
}

// gcLoop reclaims value log space left by acknowledged frames.
func (o *Outbox) gcLoop() {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := o.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					o.logger.Warn("outbox gc failed", "error", err)
				}
				break
			}
		case <-o.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog to Badger's logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
