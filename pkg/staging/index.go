package staging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces index records inside the badger database.
const keyPrefix = "staging/"

// Index is a badger-backed token index for the staging area.
//
// It lets cache tokens survive process restarts without walking the staging
// directory tree, which matters once the area accumulates many entries.
type Index struct {
	db *badger.DB
}

// OpenIndex opens (or creates) the index database at path.
func OpenIndex(path string) (*Index, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for a side index

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging index at %q: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

func indexKey(token string) []byte {
	return []byte(keyPrefix + token)
}

// Put records an entry under its token.
func (i *Index) Put(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode index entry: %w", err)
	}

	err = i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(entry.Token), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write index entry: %w", err)
	}
	return nil
}

// Get returns the entry for a token, or ErrNotFound.
func (i *Index) Get(token string) (Entry, error) {
	var entry Entry

	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, token)
		}
		return Entry{}, fmt.Errorf("failed to read index entry: %w", err)
	}
	return entry, nil
}

// Delete removes the entry for a token. Missing tokens are ignored.
func (i *Index) Delete(token string) error {
	err := i.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(indexKey(token))
	})
	if err != nil {
		return fmt.Errorf("failed to delete index entry: %w", err)
	}
	return nil
}

// Tokens returns all indexed tokens.
func (i *Index) Tokens() ([]string, error) {
	var tokens []string

	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			tokens = append(tokens, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list index entries: %w", err)
	}
	return tokens, nil
}
