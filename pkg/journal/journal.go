// Package journal persists mining solutions so a restarted miner can report
// what it already found.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var solutionPrefix = []byte("sol-")

// ErrNotFound is returned when no record exists for a header ID
var ErrNotFound = errors.New("journal: record not found")

// Record is one found solution
type Record struct {
	ID       common.Hash   `json:"id"`       // Double SHA-256 of the solved header
	PowHash  common.Hash   `json:"pow_hash"` // QHash of the solved header
	Header   hexutil.Bytes `json:"header"`   // Serialized solved header
	Nonce    uint32        `json:"nonce"`
	WorkID   string        `json:"work_id"`
	Attempts uint64        `json:"attempts"`
	FoundAt  time.Time     `json:"found_at"`
}

// Journal is a leveldb-backed solution store. It is safe for concurrent use.
type Journal struct {
	db *leveldb.DB
}

// Open opens or creates a journal at path
func Open(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// OpenMemory opens a journal that lives only in memory
func OpenMemory() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func solutionKey(id common.Hash) []byte {
	return append(append([]byte{}, solutionPrefix...), id[:]...)
}

// Put stores a record, replacing any previous record for the same header
func (j *Journal) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return j.db.Put(solutionKey(rec.ID), data, nil)
}

// Get loads the record for a header ID
func (j *Journal) Get(id common.Hash) (*Record, error) {
	data, err := j.db.Get(solutionKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := new(Record)
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("corrupt record %x: %w", id, err)
	}
	return rec, nil
}

// Has reports whether a record exists for a header ID
func (j *Journal) Has(id common.Hash) (bool, error) {
	return j.db.Has(solutionKey(id), nil)
}

// List returns every record in key order
func (j *Journal) List() ([]*Record, error) {
	it := j.db.NewIterator(util.BytesPrefix(solutionPrefix), nil)
	defer it.Release()

	var records []*Record
	for it.Next() {
		rec := new(Record)
		if err := json.Unmarshal(it.Value(), rec); err != nil {
			return nil, fmt.Errorf("corrupt record %x: %w", it.Key(), err)
		}
		records = append(records, rec)
	}
	return records, it.Error()
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}
