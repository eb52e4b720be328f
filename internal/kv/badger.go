package kv

import (
	"context"

	"github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
)

// badgerStore wraps a *badger.DB behind the Store interface. Grounded on
// other_examples' oasis-core Badger node database, which wraps Badger
// behind exactly this shape: a small ordered key/value interface over
// Txn/WriteBatch/Iterator.
type badgerStore struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Badger database rooted at dir, the
// per-db store directory described in spec.md §6 ("one store directory
// per db under dbroot/<name>/data").
func Open(dir string) (Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "persdb/kv: open badger store")
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		return it.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "persdb/kv: get")
	}
	return out, nil
}

func (s *badgerStore) Has(ctx context.Context, key []byte) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *badgerStore) NewBatch() Batch {
	return &badgerBatch{wb: s.db.NewWriteBatch()}
}

func (s *badgerStore) NewIterator(ctx context.Context, prefix []byte, reverse bool) (Iterator, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	start := append([]byte(nil), prefix...)
	if reverse {
		// badger's reverse iteration over a prefix requires seeking to
		// the prefix's upper bound; appending 0xff bytes approximates
		// "just past" any key sharing this prefix.
		start = append(start, 0xff, 0xff, 0xff, 0xff)
	}
	it.Seek(start)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, first: true}, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

type badgerBatch struct {
	wb  *badger.WriteBatch
	err error
}

func (b *badgerBatch) Put(key, value []byte) {
	if b.err != nil {
		return
	}
	b.err = b.wb.Set(key, value)
}

func (b *badgerBatch) Delete(key []byte) {
	if b.err != nil {
		return
	}
	b.err = b.wb.Delete(key)
}

func (b *badgerBatch) Commit() error {
	if b.err != nil {
		b.wb.Cancel()
		return errors.Wrap(b.err, "persdb/kv: batch")
	}
	if err := b.wb.Flush(); err != nil {
		return errors.Wrap(err, "persdb/kv: batch commit")
	}
	return nil
}

type badgerIterator struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	first  bool
	cur    KV
	err    error
}

func (it *badgerIterator) Next() bool {
	if it.first {
		it.first = false
	} else {
		it.it.Next()
	}
	if !it.it.ValidForPrefix(it.prefix) {
		return false
	}
	bi := it.it.Item()
	key := append([]byte(nil), bi.Key()...)
	val, err := bi.ValueCopy(nil)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = KV{Key: key, Value: val}
	return true
}

func (it *badgerIterator) Item() KV   { return it.cur }
func (it *badgerIterator) Err() error { return it.err }
func (it *badgerIterator) Close() error {
	it.it.Close()
	it.txn.Discard()
	return nil
}
