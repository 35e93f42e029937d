// Package buildlog keeps the on-disk build history. Every run appends one
// record per job to a local badger database, and the history command reads
// them back. The ledger is advisory: a build must never fail because its
// history could not be written.
package buildlog

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when the ledger has no matching run.
var ErrNotFound = errors.New("run not found")

const (
	latestKey  = "latest"
	metaPrefix = "meta/"
	runPrefix  = "run/"
)

// Ledger is a badger-backed build history.
type Ledger struct {
	db *badger.DB
}

// Open opens the ledger, creating the directory on first use.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close flushes and closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

// Append records one finished run and points latest at it.
func (l *Ledger) Append(run *Run) error {
	meta := Run{ID: run.ID, Started: run.Started, Finished: run.Finished}
	metaVal, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaPrefix+run.ID), metaVal); err != nil {
			return err
		}
		for _, rec := range run.Jobs {
			val, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(runPrefix+run.ID+"/"+rec.Target), val); err != nil {
				return err
			}
		}
		return txn.Set([]byte(latestKey), []byte(run.ID))
	})
}

// Latest returns the most recently appended run.
func (l *Ledger) Latest() (*Run, error) {
	var id string
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			id = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return l.Get(id)
}

// Get returns one run by ID. Job records come back sorted by target.
func (l *Ledger) Get(id string) (*Run, error) {
	run := &Run{}
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, run)
		}); err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(runPrefix + id + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			run.Jobs = append(run.Jobs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
