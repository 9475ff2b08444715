package memstore

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/fetchai/ledger-sub006/log"
)

// levelDBBackend is a persistent Backend, selected for chain.Mode ==
// chain.LoadPersistentDB. Adapted from the teacher's
// storage/database/leveldb_database.go: same open-with-recovery
// sequence, narrowed to the Get/Put/Snapshot/Restore surface this
// package's Store actually calls.
type levelDBBackend struct {
	db     *leveldb.DB
	logger log.Logger
}

// NewLevelDBBackend opens (or creates) a LevelDB database at dir.
func NewLevelDBBackend(dir string) (Backend, error) {
	logger := log.NewModuleLogger(log.Storage).New("backend", "leveldb", "dir", dir)
	db, err := leveldb.OpenFile(dir, nil)
	if _, corrupted := err.(*ldberrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "opening leveldb database")
	}
	logger.Info("opened leveldb backend")
	return &levelDBBackend{db: db, logger: logger}, nil
}

func (b *levelDBBackend) Get(key []byte) ([]byte, bool) {
	v, err := b.db.Get(key, nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (b *levelDBBackend) Put(key, value []byte) {
	if err := b.db.Put(key, value, nil); err != nil {
		b.logger.Error("leveldb put failed", "err", err)
	}
}

func (b *levelDBBackend) Snapshot() map[string][]byte {
	out := make(map[string][]byte)
	iter := b.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		out[string(iter.Key())] = append([]byte(nil), iter.Value()...)
	}
	return out
}

func (b *levelDBBackend) Restore(snapshot map[string][]byte) {
	batch := new(leveldb.Batch)
	iter := b.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	for k, v := range snapshot {
		batch.Put([]byte(k), v)
	}
	if err := b.db.Write(batch, nil); err != nil {
		b.logger.Error("leveldb restore failed", "err", err)
	}
}
