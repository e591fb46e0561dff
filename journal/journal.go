// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package journal is qop's durable append-only record of terminal task
// outcomes. It is not part of the wire protocol or the queue itself --
// workers write to it once a task reaches OK/SKIP/FAIL, purely as an
// operational audit trail local to one daemon instance.
package journal

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Record is one completed task's audit entry.
type Record struct {
	ID        int64
	Kind      string
	Src, Dst  string
	Status    string // "OK", "SKIP", or "FAIL"
	Error     string
	StartTime time.Time
	StopTime  time.Time
}

// Open opens (creating if necessary) the bolt database at path and
// starts its owning goroutine. The returned Journal must be closed with
// Close when the daemon shuts down.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, CantOpenError{Message: err.Error()}
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("tasks"))
		return err
	}); err != nil {
		db.Close()
		return nil, CantOpenError{Message: err.Error()}
	}

	j := &Journal{}
	j.input.create = make(chan Record)
	j.input.fetch = make(chan TimeRange)
	j.input.shutdown = make(chan struct{})
	j.output.err = make(chan error)
	j.output.records = make(chan []Record)

	go j.run(db)
	return j, nil
}

// TimeRange bounds a Records query, inclusive on both ends.
type TimeRange struct {
	Start, Stop time.Time
}

// Journal owns a bbolt database on a single goroutine, so all access to
// it is serialized. Every exported method is a blocking round trip over
// channels to that goroutine: the caller waits until its request has
// been served.
type Journal struct {
	input struct {
		create   chan Record
		fetch    chan TimeRange
		shutdown chan struct{}
	}
	output struct {
		err     chan error
		records chan []Record
	}
}

// Record appends rec to the journal.
func (j *Journal) Record(rec Record) error {
	switch rec.Status {
	case "OK", "SKIP", "FAIL":
	default:
		return NewRecordError{ID: rec.ID, Message: fmt.Sprintf("invalid status %q", rec.Status)}
	}
	j.input.create <- rec
	return <-j.output.err
}

// Records returns every record whose StartTime falls within [start,stop].
func (j *Journal) Records(start, stop time.Time) ([]Record, error) {
	j.input.fetch <- TimeRange{Start: start, Stop: stop}
	select {
	case recs := <-j.output.records:
		return recs, nil
	case err := <-j.output.err:
		return nil, err
	}
}

// Close stops the owning goroutine and closes the underlying database.
func (j *Journal) Close() error {
	j.input.shutdown <- struct{}{}
	if err := <-j.output.err; err != nil {
		return CantCloseError{Message: err.Error()}
	}
	return nil
}

func (j *Journal) run(db *bolt.DB) {
	for {
		select {
		case rec := <-j.input.create:
			j.output.err <- appendRecord(db, rec)

		case timeRange := <-j.input.fetch:
			recs, err := fetchRecords(db, timeRange.Start, timeRange.Stop)
			if err != nil {
				j.output.err <- err
			} else {
				j.output.records <- recs
			}

		case <-j.input.shutdown:
			j.output.err <- db.Close()
			return
		}
	}
}

// key orders records lexicographically by start time, with the queue id
// appended to disambiguate entries sharing a timestamp.
func key(rec Record) []byte {
	return []byte(fmt.Sprintf("%s/%020d", rec.StartTime.UTC().Format(time.RFC3339Nano), rec.ID))
}

func appendRecord(db *bolt.DB, rec Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	row := []string{
		fmt.Sprintf("%d", rec.ID),
		rec.Kind,
		rec.Src,
		rec.Dst,
		rec.Status,
		rec.Error,
		rec.StopTime.UTC().Format(time.RFC3339Nano),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("tasks")).Put(key(rec), buf.Bytes())
	})
}

func fetchRecords(db *bolt.DB, start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	startKey := []byte(start.UTC().Format(time.RFC3339Nano))
	stopKey := []byte(stop.UTC().Format(time.RFC3339Nano) + "/\xff")

	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte("tasks")).Cursor()
		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, stopKey) <= 0; k, v = c.Next() {
			rec, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func decodeRecord(k, v []byte) (Record, error) {
	r := csv.NewReader(bytes.NewReader(v))
	row, err := r.Read()
	if err != nil {
		return Record{}, InvalidRecordError{Key: string(k), Message: err.Error()}
	}
	if len(row) != 7 {
		return Record{}, InvalidRecordError{Key: string(k), Message: "wrong field count"}
	}

	var id int64
	fmt.Sscanf(row[0], "%d", &id)
	stopTime, err := time.Parse(time.RFC3339Nano, row[6])
	if err != nil {
		return Record{}, err
	}

	startStr := string(bytes.SplitN(k, []byte("/"), 2)[0])
	startTime, err := time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:        id,
		Kind:      row[1],
		Src:       row[2],
		Dst:       row[3],
		Status:    row[4],
		Error:     row[5],
		StartTime: startTime,
		StopTime:  stopTime,
	}, nil
}
