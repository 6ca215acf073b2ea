// Package journal keeps an append-only record of lifecycle events in a
// Badger key-value store. The journal is a secondary audit trail: writes are
// fed by the event bus after the primary store has committed, and reads
// reconstruct a panel's history in the order events were appended.
package journal

import (
	"encoding/json"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/quality-dot/solar-panel-production-tracking-sub010/workflow"
)

// Journal is the append-only event log.
type Journal struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger cmtlog.Logger
}

// Open opens or creates a journal at the given directory.
func Open(dir string, logger cmtlog.Logger) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal at %s: %w", dir, err)
	}
	return newJournal(db, logger)
}

// OpenInMemory opens a journal that lives only for the process lifetime.
// Used in tests and ephemeral environments.
func OpenInMemory(logger cmtlog.Logger) (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory journal: %w", err)
	}
	return newJournal(db, logger)
}

func newJournal(db *badger.DB, logger cmtlog.Logger) (*Journal, error) {
	seq, err := db.GetSequence([]byte("journal_seq"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("allocating journal sequence: %w", err)
	}
	return &Journal{db: db, seq: seq, logger: logger}, nil
}

// Close releases the sequence and the underlying store.
func (j *Journal) Close() error {
	if err := j.seq.Release(); err != nil {
		j.logger.Error("releasing journal sequence", "err", err)
	}
	return j.db.Close()
}

// Entry is one journaled event. Seq orders entries globally.
type Entry struct {
	Seq   uint64         `json:"seq"`
	Event workflow.Event `json:"event"`
}

// Append writes one event to the journal. Events without a panel serial
// (order and pallet events) are keyed by their order or pallet id.
func (j *Journal) Append(ev workflow.Event) error {
	n, err := j.seq.Next()
	if err != nil {
		return fmt.Errorf("advancing journal sequence: %w", err)
	}
	entry := Entry{Seq: n, Event: ev}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}

	key := fmt.Sprintf("%s/%020d", subjectKey(ev), n)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("writing journal entry %s: %w", key, err)
	}
	return nil
}

// subjectKey picks the prefix an event is filed under.
func subjectKey(ev workflow.Event) string {
	switch {
	case ev.PanelSerial != "":
		return "panel/" + ev.PanelSerial
	case ev.PalletID != "":
		return "pallet/" + ev.PalletID
	default:
		return "order/" + ev.OrderID
	}
}

// PanelHistory returns every journaled event for a panel in append order.
func (j *Journal) PanelHistory(serial string) ([]Entry, error) {
	return j.scan("panel/" + serial)
}

// OrderHistory returns order-level events (completions, low-stock alerts).
func (j *Journal) OrderHistory(orderID string) ([]Entry, error) {
	return j.scan("order/" + orderID)
}

func (j *Journal) scan(prefix string) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix + "/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return fmt.Errorf("decoding journal entry %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Handler adapts the journal into an event bus subscriber.
func (j *Journal) Handler() workflow.Handler {
	return func(ev workflow.Event) error {
		if err := j.Append(ev); err != nil {
			j.logger.Error("journal append failed", "event", string(ev.Type), "err", err)
			return err
		}
		return nil
	}
}
