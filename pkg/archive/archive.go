// Package archive keeps decoded records in a pebble database. Keys are
// "<recordType>/<ksuid>", so a record type's entries scan in archive time
// order to the second.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/recordkit/pkg/logger"
	"github.com/ssargent/recordkit/pkg/record"
)

// ErrNotFound is returned when no entry has the requested key
var ErrNotFound = errors.New("archive entry not found")

const keySeparator = '/'

// Entry is one archived record
type Entry struct {
	ID         ksuid.KSUID        `json:"id"`
	RecordType string             `json:"record_type"`
	Layout     string             `json:"layout"`
	ArchivedAt time.Time          `json:"archived_at"`
	Record     *record.DataRecord `json:"record"`
}

// Option configures an Archive
type Option func(*Archive)

// WithLogger sets the archive logger
func WithLogger(l logger.Logger) Option {
	return func(a *Archive) { a.log = l }
}

// WithSync makes every write wait for the WAL to reach disk
func WithSync(sync bool) Option {
	return func(a *Archive) {
		if sync {
			a.writeOpts = pebble.Sync
		} else {
			a.writeOpts = pebble.NoSync
		}
	}
}

// Archive is safe for concurrent use
type Archive struct {
	db        *pebble.DB
	log       logger.Logger
	writeOpts *pebble.WriteOptions
	now       func() time.Time
}

// Open opens or creates the archive in dir
func Open(dir string, opts ...Option) (*Archive, error) {
	a := &Archive{log: logger.Nop(), writeOpts: pebble.NoSync, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", dir, err)
	}
	a.db = db
	a.log.Debug("archive opened", "dir", dir)
	return a, nil
}

func entryKey(recordType string, id ksuid.KSUID) []byte {
	return []byte(recordType + string(keySeparator) + id.String())
}

func checkRecordType(recordType string) error {
	if recordType == "" {
		return errors.New("record type must not be empty")
	}
	if strings.ContainsRune(recordType, keySeparator) {
		return fmt.Errorf("record type %q must not contain %q", recordType, keySeparator)
	}
	return nil
}

// Put stores rec under a new ksuid and returns the stored entry
func (a *Archive) Put(layoutPath string, rec *record.DataRecord) (*Entry, error) {
	if rec == nil {
		return nil, errors.New("record must not be nil")
	}
	if err := checkRecordType(rec.RecordType()); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	at := a.now()
	env, err := newEnvelope(layoutPath, payload, at)
	if err != nil {
		return nil, err
	}

	id, err := ksuid.NewRandomWithTime(at)
	if err != nil {
		return nil, fmt.Errorf("new archive id: %w", err)
	}
	if err := a.db.Set(entryKey(rec.RecordType(), id), env.encode(), a.writeOpts); err != nil {
		return nil, fmt.Errorf("put %s/%s: %w", rec.RecordType(), id, err)
	}
	return &Entry{ID: id, RecordType: rec.RecordType(), Layout: layoutPath, ArchivedAt: time.Unix(0, int64(env.Timestamp)), Record: rec}, nil
}

// Get returns the entry stored under recordType and id
func (a *Archive) Get(recordType string, id ksuid.KSUID) (*Entry, error) {
	data, closer, err := a.db.Get(entryKey(recordType, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, recordType, id)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return decodeEntry(recordType, id, data)
}

// Delete removes an entry. Deleting a missing entry is not an error.
func (a *Archive) Delete(recordType string, id ksuid.KSUID) error {
	return a.db.Delete(entryKey(recordType, id), a.writeOpts)
}

// Scan calls fn for every entry of recordType in key order, or for
// every entry when recordType is empty. A non-nil error from fn stops the scan.
func (a *Archive) Scan(recordType string, fn func(*Entry) error) error {
	iterOpts := &pebble.IterOptions{}
	if recordType != "" {
		if err := checkRecordType(recordType); err != nil {
			return err
		}
		iterOpts.LowerBound = []byte(recordType + string(keySeparator))
		iterOpts.UpperBound = []byte(recordType + string(keySeparator+1))
	}
	iter, err := a.db.NewIter(iterOpts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rt, id, err := splitKey(iter.Key())
		if err != nil {
			return err
		}
		entry, err := decodeEntry(rt, id, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns the number of entries of recordType, or of all entries
// when recordType is empty
func (a *Archive) Count(recordType string) (int, error) {
	n := 0
	err := a.Scan(recordType, func(*Entry) error {
		n++
		return nil
	})
	return n, err
}

// Close closes the database
func (a *Archive) Close() error {
	return a.db.Close()
}

func splitKey(key []byte) (string, ksuid.KSUID, error) {
	i := bytes.LastIndexByte(key, keySeparator)
	if i < 0 {
		return "", ksuid.Nil, fmt.Errorf("%w: malformed key %q", ErrCorrupted, key)
	}
	id, err := ksuid.Parse(string(key[i+1:]))
	if err != nil {
		return "", ksuid.Nil, fmt.Errorf("%w: malformed key %q: %v", ErrCorrupted, key, err)
	}
	return string(key[:i]), id, nil
}

func decodeEntry(recordType string, id ksuid.KSUID, data []byte) (*Entry, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", recordType, id, err)
	}
	rec := &record.DataRecord{}
	if err := json.Unmarshal(env.Payload, rec); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrCorrupted, recordType, id, err)
	}
	return &Entry{
		ID:         id,
		RecordType: recordType,
		Layout:     string(env.Layout),
		ArchivedAt: time.Unix(0, int64(env.Timestamp)),
		Record:     rec,
	}, nil
}
