// Package journal persists executed trades in a pebble-backed outbox.
// The matching path never touches it: the engine appends after an
// operation completes, and the broadcaster drains records through the
// NEW → SENT → ACKED state machine so no trade is lost across a crash.
package journal

import (
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Record is one executed trade. Price and Qty are in the instrument's
// internal ticks and lots.
type Record struct {
	Instrument string
	Seq        uint64
	BuyID      uint64
	SellID     uint64
	Price      int64
	Qty        int64
	Ts         int64

	State   State
	Retries uint32
}

// -------------------- Journal --------------------

type Journal struct {
	db *pebble.DB
}

func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// -------------------- API --------------------

// Append inserts a trade in state NEW. Called by the engine once per
// executed trade, after the matching operation has returned.
func (j *Journal) Append(rec Record) error {
	rec.State = StateNew
	rec.Retries = 0
	if rec.Ts == 0 {
		rec.Ts = time.Now().UnixNano()
	}
	return j.db.Set(keyFor(rec.Instrument, rec.Seq), encodeRecord(rec), pebble.Sync)
}

// UpdateState moves a record through the outbox state machine.
func (j *Journal) UpdateState(instrument string, seq uint64, state State, retries uint32) error {
	rec, err := j.Get(instrument, seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	return j.db.Set(keyFor(instrument, seq), encodeRecord(rec), pebble.Sync)
}

// Get returns the current record for a trade.
func (j *Journal) Get(instrument string, seq uint64) (Record, error) {
	val, closer, err := j.db.Get(keyFor(instrument, seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(val)
}

// Delete removes a record.
func (j *Journal) Delete(instrument string, seq uint64) error {
	return j.db.Delete(keyFor(instrument, seq), pebble.Sync)
}

// ScanByState iterates all records in the given state, in key order
// (instrument, then trade sequence). Used by the broadcaster.
func (j *Journal) ScanByState(state State, fn func(rec Record) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAcked deletes every ACKED record. Called periodically as GC.
func (j *Journal) TruncateAcked() error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	b := j.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateAcked {
			continue
		}
		if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return j.db.Apply(b, pebble.Sync)
}

// -------------------- Helpers --------------------

const keyPrefix = "trade/"

func keyFor(instrument string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, instrument, seq))
}
