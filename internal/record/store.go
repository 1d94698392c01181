// Package record persists build records between runs.
//
// Each target or generator owns one BoltDB file inside its intermediate
// directory. A record is written in a single transaction, so a crash while
// storing leaves either the previous record or nothing readable. Any file
// that cannot be read back cleanly, including one written by another
// schema version or fingerprint mode, is reported as ErrNotFound and the
// unit is rebuilt from scratch.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Norgate-AV/ccbuild/internal/fingerprint"
)

const (
	// SchemaVersion is bumped whenever the record layout changes
	SchemaVersion = 1

	// Ext is the record file extension
	Ext = ".bdb"

	metaBucket   = "meta"
	recordBucket = "record"

	versionKey   = "version"
	modeKey      = "mode"
	targetKey    = "target"
	generatorKey = "generator"
)

// ErrNotFound is returned when no usable record exists
var ErrNotFound = errors.New("build record not found")

// Store reads and writes the record file of one unit
type Store struct {
	path string
}

// NewStore returns the store for the unit name inside dir
func NewStore(dir, name string) *Store {
	return &Store{path: filepath.Join(dir, name+Ext)}
}

// Path returns the record file path
func (s *Store) Path() string {
	return s.path
}

// LoadTarget loads a target record written with the same fingerprint mode
func (s *Store) LoadTarget(mode fingerprint.Mode) (*Target, error) {
	var t Target
	if err := s.load(targetKey, mode, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

// StoreTarget overwrites the target record
func (s *Store) StoreTarget(mode fingerprint.Mode, t *Target) error {
	return s.store(targetKey, mode, t)
}

// LoadGenerator loads a generator record written with the same fingerprint mode
func (s *Store) LoadGenerator(mode fingerprint.Mode) (*Generator, error) {
	var g Generator
	if err := s.load(generatorKey, mode, &g); err != nil {
		return nil, err
	}

	return &g, nil
}

// StoreGenerator overwrites the generator record
func (s *Store) StoreGenerator(mode fingerprint.Mode, g *Generator) error {
	return s.store(generatorKey, mode, g)
}

// Remove deletes the record file
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove build record: %w", err)
	}

	return nil
}

func (s *Store) load(key string, mode fingerprint.Mode, v any) (err error) {
	if _, err := os.Stat(s.path); err != nil {
		return ErrNotFound
	}

	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer db.Close()

	// bbolt panics on some kinds of page corruption
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: corrupt database: %v", ErrNotFound, r)
		}
	}()

	return db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if meta == nil {
			return fmt.Errorf("%w: missing metadata", ErrNotFound)
		}

		if got := string(meta.Get([]byte(versionKey))); got != strconv.Itoa(SchemaVersion) {
			return fmt.Errorf("%w: schema version %q", ErrNotFound, got)
		}

		if got := string(meta.Get([]byte(modeKey))); got != mode.String() {
			return fmt.Errorf("%w: fingerprint mode %q", ErrNotFound, got)
		}

		b := tx.Bucket([]byte(recordBucket))
		if b == nil {
			return fmt.Errorf("%w: missing record bucket", ErrNotFound)
		}

		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}

		return nil
	})
}

func (s *Store) store(key string, mode fingerprint.Mode, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode build record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return err
		}

		if err := meta.Put([]byte(versionKey), []byte(strconv.Itoa(SchemaVersion))); err != nil {
			return err
		}

		if err := meta.Put([]byte(modeKey), []byte(mode.String())); err != nil {
			return err
		}

		b, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		if err != nil {
			return err
		}

		return b.Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store build record: %w", err)
	}

	return nil
}

// open opens the record file for writing, replacing a file that bbolt
// cannot open
func (s *Store) open() (*bbolt.DB, error) {
	opts := &bbolt.Options{Timeout: 1 * time.Second}

	db, err := bbolt.Open(s.path, 0o600, opts)
	if err == nil {
		return db, nil
	}

	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open build record: %w", err)
	}

	if rmErr := os.Remove(s.path); rmErr != nil {
		return nil, fmt.Errorf("failed to open build record: %w", err)
	}

	db, err = bbolt.Open(s.path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open build record: %w", err)
	}

	return db, nil
}
