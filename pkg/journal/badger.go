package journal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/harunnryd/mimo/pkg/events"
)

var (
	eventPrefix = []byte("event:")
	seqKey      = []byte("meta:seq")
)

// BadgerOptions configures the on-disk journal.
type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
	// Logger receives badger warnings and errors. If nil, slog.Default is
	// used.
	Logger *slog.Logger
}

// Badger is a Store backed by BadgerDB. Keys are the event prefix followed
// by a zero-padded sequence number, so key order is insertion order.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
	mu  sync.Mutex
}

func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: log.With(slog.String("component", "journal"))})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("journal: open badger: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: sequence: %w", err)
	}
	return &Badger{db: db, seq: seq}, nil
}

func eventKey(n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix, n))
}

func (b *Badger) Append(_ context.Context, ev events.DomainEvent) error {
	val, err := encode(ev)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	// The sequence number and the write happen together so concurrent
	// appends land in the order they were numbered.
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("journal: next sequence: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(n), val)
	})
}

func (b *Badger) All(_ context.Context) iter.Seq2[events.DomainEvent, error] {
	return func(yield func(events.DomainEvent, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = eventPrefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(eventPrefix); it.ValidForPrefix(eventPrefix); it.Next() {
				val, err := it.Item().ValueCopy(nil)
				if err != nil {
					if !yield(events.DomainEvent{}, err) {
						return nil
					}
					continue
				}
				ev, err := decode(val)
				if !yield(ev, err) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(events.DomainEvent{}, err)
		}
	}
}

func (b *Badger) Len(_ context.Context) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = eventPrefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(eventPrefix); it.ValidForPrefix(eventPrefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *Badger) Close() error {
	return errors.Join(b.seq.Release(), b.db.Close())
}

// badgerLogger only reports badger warnings and errors.
type badgerLogger struct{ log *slog.Logger }

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error("badger_error", slog.String("message", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn("badger_warning", slog.String("message", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}

var _ Store = (*Badger)(nil)
