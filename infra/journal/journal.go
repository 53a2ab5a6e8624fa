// Package journal is the durable notification outbox. The engine's
// notifiers append events here synchronously; the broadcaster delivers
// them to Kafka later and marks them off. Only delivery state lives in
// the journal; the order book itself is never persisted.
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
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

type Record struct {
	State       State
	Attempts    uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][attempts:4][lastAttempt:8][payload...]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Attempts)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("journal: record too short")
	}
	return Record{
		State:       State(b[0]),
		Attempts:    binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[13:]...),
	}, nil
}

// -------------------- Journal --------------------

type Journal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability for undelivered events
	})
	if err != nil {
		return nil, err
	}

	j := &Journal{db: db}
	last, err := j.lastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.seq.Store(last)
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// -------------------- API --------------------

// Append stores a new event payload and returns its sequence.
func (j *Journal) Append(payload []byte) (uint64, error) {
	seq := j.seq.Add(1)
	rec := Record{State: StateNew, Payload: payload}
	if err := j.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync); err != nil {
		return 0, err
	}
	return seq, nil
}

// MarkSent flags an event as handed to the transport.
func (j *Journal) MarkSent(seq uint64) error {
	return j.transition(seq, StateSent)
}

// MarkAcked flags an event as confirmed delivered.
func (j *Journal) MarkAcked(seq uint64) error {
	return j.transition(seq, StateAcked)
}

func (j *Journal) transition(seq uint64, state State) error {
	rec, err := j.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Attempts++
	rec.LastAttempt = time.Now().UnixNano()
	return j.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// Get returns the record for one event.
func (j *Journal) Get(seq uint64) (Record, error) {
	val, closer, err := j.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(val)
}

// -------------------- Scan --------------------

// ScanPending visits every event not yet acknowledged, oldest first.
// This is the broadcaster's work queue; SENT records reappear so a
// crash between send and ack retries (delivery is at-least-once).
func (j *Journal) ScanPending(fn func(seq uint64, rec Record) error) error {
	return j.scan(func(seq uint64, rec Record) error {
		if rec.State == StateAcked {
			return nil
		}
		return fn(seq, rec)
	})
}

// PurgeAcked deletes delivered events and reports how many went.
func (j *Journal) PurgeAcked() (int, error) {
	var seqs []uint64
	err := j.scan(func(seq uint64, rec Record) error {
		if rec.State == StateAcked {
			seqs = append(seqs, seq)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, seq := range seqs {
		if err := j.db.Delete(keyFor(seq), pebble.Sync); err != nil {
			return 0, err
		}
	}
	return len(seqs), nil
}

func (j *Journal) scan(fn func(seq uint64, rec Record) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
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
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (j *Journal) lastSeq() (uint64, error) {
	var last uint64
	err := j.scan(func(seq uint64, _ Record) error {
		if seq > last {
			last = seq
		}
		return nil
	})
	return last, err
}

// -------------------- Helpers --------------------

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("event/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("event/"))), "%d", &seq)
	return seq, err
}
