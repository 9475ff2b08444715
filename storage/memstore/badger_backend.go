package memstore

import (
	"os"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/fetchai/ledger-sub006/log"
)

// badgerBackend is the alternate persistent Backend, selectable
// alongside levelDBBackend the same way the teacher's DBManager picks
// between leveldb and badger (storage/database/badger_database.go),
// narrowed to this package's Get/Put/Snapshot/Restore surface.
type badgerBackend struct {
	db     *badger.DB
	logger log.Logger
}

// NewBadgerBackend opens (or creates) a badger database at dir.
func NewBadgerBackend(dir string) (Backend, error) {
	logger := log.NewModuleLogger(log.Storage).New("backend", "badger", "dir", dir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating badger directory")
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening badger database")
	}
	logger.Info("opened badger backend")
	return &badgerBackend{db: db, logger: logger}, nil
}

func (b *badgerBackend) Get(key []byte) ([]byte, bool) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return out, true
}

func (b *badgerBackend) Put(key, value []byte) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		b.logger.Error("badger put failed", "err", err)
	}
}

func (b *badgerBackend) Snapshot() map[string][]byte {
	out := make(map[string][]byte)
	_ = b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				continue
			}
			out[string(item.KeyCopy(nil))] = v
		}
		return nil
	})
	return out
}

func (b *badgerBackend) Restore(snapshot map[string][]byte) {
	err := b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for k, v := range snapshot {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.logger.Error("badger restore failed", "err", err)
	}
}
