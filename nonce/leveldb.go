package nonce

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	nonceKeyPrefix    = "nonce:"
	observedKeyPrefix = "observed:"
)

// LevelDBPersistence is a Persistence backed by an embedded LevelDB store,
// letting an auth proxy survive a restart without momentarily re-accepting
// tuples it had already seen.
type LevelDBPersistence struct {
	db *leveldb.DB
}

// NewLevelDBPersistence opens (or creates) a LevelDB database at path.
func NewLevelDBPersistence(path string) (*LevelDBPersistence, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("nonce: leveldb persistence path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("nonce: resolve leveldb path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("nonce: open leveldb store: %w", err)
	}
	return &LevelDBPersistence{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (p *LevelDBPersistence) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ensure records tuple as observed at seenAt if it is not already present.
func (p *LevelDBPersistence) Ensure(tuple string, seenAt time.Time) (bool, error) {
	if p == nil || p.db == nil {
		return false, fmt.Errorf("nonce: leveldb persistence not configured")
	}
	if tuple == "" {
		return false, fmt.Errorf("nonce: tuple must not be empty")
	}
	observed := seenAt.UTC()
	nonceKey := []byte(nonceKeyPrefix + tuple)
	existingVal, err := p.db.Get(nonceKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		// Not found: insert new entry.
	case err != nil:
		return false, fmt.Errorf("nonce: load entry: %w", err)
	default:
		existing := int64(binary.BigEndian.Uint64(existingVal))
		if observed.UnixNano() > existing {
			if err := p.updateObserved(tuple, nonceKey, existing, observed.UnixNano()); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	batch := new(leveldb.Batch)
	nanos := observed.UnixNano()
	batch.Put(nonceKey, encodeUnixNano(nanos))
	batch.Put([]byte(observedKey(nanos, tuple)), nil)
	if err := p.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("nonce: record entry: %w", err)
	}
	return false, nil
}

// Recent returns tuples observed at or after cutoff.
func (p *LevelDBPersistence) Recent(cutoff time.Time) (map[string]time.Time, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("nonce: leveldb persistence not configured")
	}
	cutoff = cutoff.UTC()
	cutoffKey := []byte(observedKey(cutoff.UnixNano(), ""))
	iter := p.db.NewIterator(util.BytesPrefix([]byte(observedKeyPrefix)), nil)
	defer iter.Release()

	records := make(map[string]time.Time)
	for ok := iter.Seek(cutoffKey); ok; ok = iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		tuple, nanos, ok := parseObservedKey(key)
		if !ok {
			continue
		}
		records[tuple] = time.Unix(0, nanos).UTC()
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("nonce: iterate entries: %w", err)
	}
	return records, nil
}

// Prune deletes entries observed before cutoff.
func (p *LevelDBPersistence) Prune(cutoff time.Time) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("nonce: leveldb persistence not configured")
	}
	cutoff = cutoff.UTC()
	cutoffKey := []byte(observedKey(cutoff.UnixNano(), ""))
	iter := p.db.NewIterator(util.BytesPrefix([]byte(observedKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if compareKeys(iter.Key(), cutoffKey) >= 0 {
			break
		}
		tuple, _, ok := parseObservedKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete([]byte(nonceKeyPrefix + tuple))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("nonce: iterate entries: %w", err)
	}
	if batch.Len() > 0 {
		if err := p.db.Write(batch, nil); err != nil {
			return fmt.Errorf("nonce: prune entries: %w", err)
		}
	}
	return nil
}

func (p *LevelDBPersistence) updateObserved(tuple string, nonceKey []byte, previous, next int64) error {
	batch := new(leveldb.Batch)
	batch.Put(nonceKey, encodeUnixNano(next))
	batch.Delete([]byte(observedKey(previous, tuple)))
	batch.Put([]byte(observedKey(next, tuple)), nil)
	if err := p.db.Write(batch, nil); err != nil {
		return fmt.Errorf("nonce: update observed entry: %w", err)
	}
	return nil
}

func observedKey(nanos int64, tuple string) string {
	return fmt.Sprintf("%s%020d:%s", observedKeyPrefix, nanos, tuple)
}

func parseObservedKey(key []byte) (string, int64, bool) {
	raw := string(key)
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[2], nanos, true
}

func encodeUnixNano(nanos int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nanos))
	return buf
}

func compareKeys(a, b []byte) int {
	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	for i := 0; i < min; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
