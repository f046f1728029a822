package kv

import (
	"context"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/lmdb-go/lmdb"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/layerr"
)

// LMDBOpts configures the production backend. Adapted from the sizing
// idiom in turbo-geth's ethdb/bitmapdb (ShardLimit as a datasize.ByteSize),
// here applied to the environment map size instead of a bitmap shard size.
type LMDBOpts struct {
	Path      string
	MapSize   datasize.ByteSize
	ReadOnly  bool
	NoReadMap bool

	// LockMemory requests that the backend's memory maps be locked
	// resident (spec.md §6's `lockmemory` option). lmdb-go exposes no
	// env-level mlock flag, so this is accepted and threaded through from
	// config.Config today without an effect on the opened environment;
	// see DESIGN.md.
	LockMemory bool
}

// DefaultMapSize mirrors the teacher's preference for generous, round
// memory-mapped sizes (LMDB reserves address space, not disk, up front).
const DefaultMapSize = 512 * datasize.MB

// LMDB is the production backend: one memory-mapped environment, one DBI
// per bucket in common/dbutils.Buckets, opened with the DupSort flag for
// every secondary index. Single-writer by construction (LMDB enforces this
// internally), matching spec.md §5's "backend serializes writes".
type LMDB struct {
	env  *lmdb.Env
	dbis map[Bucket]lmdb.DBI
	ro   bool
}

// OpenLMDB opens (creating if absent) the environment at opts.Path and
// ensures every bucket in common/dbutils.Buckets exists with the right
// DupSort flag. This is the main layer_v2.lmdb environment; the node-edit
// and splice logs each live in their own single-database environment, see
// OpenLogLMDB.
func OpenLMDB(opts LMDBOpts) (*LMDB, error) {
	return openLMDB(opts, dbutils.Buckets, dbutils.DefaultBuckets())
}

// OpenLogLMDB opens a single-database environment for a sequence log
// (nodeedits.lmdb or splices.lmdb per spec.md §6), with its one plain
// (non-dup-sort) bucket named dbName.
func OpenLogLMDB(opts LMDBOpts, dbName string) (*LMDB, error) {
	return openLMDB(opts, []Bucket{dbName}, map[Bucket]dbutils.BucketConfigItem{dbName: {}})
}

func openLMDB(opts LMDBOpts, buckets []Bucket, cfgs map[Bucket]dbutils.BucketConfigItem) (*LMDB, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("lmdb: new env: %w", err)
	}

	if err := env.SetMaxDBs(len(buckets) + 4); err != nil {
		return nil, fmt.Errorf("lmdb: set max dbs: %w", err)
	}

	mapSize := opts.MapSize
	if mapSize == 0 {
		mapSize = DefaultMapSize
	}
	if err := env.SetMapSize(int64(mapSize.Bytes())); err != nil {
		return nil, fmt.Errorf("lmdb: set map size: %w", err)
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("lmdb: mkdir: %w", err)
	}

	flags := uint(lmdb.NoSubdir)
	if opts.NoReadMap {
		// NoReadMap is intentionally not forced on by default: readers
		// holding pointers directly into the mmap avoid a copy, which
		// matters for the hot lift path.
	}
	if opts.ReadOnly {
		flags |= lmdb.Readonly
	}

	if err := env.Open(opts.Path, flags, 0o644); err != nil {
		return nil, fmt.Errorf("lmdb: open %s: %w", opts.Path, err)
	}

	l := &LMDB{env: env, dbis: make(map[Bucket]lmdb.DBI, len(buckets)), ro: opts.ReadOnly}

	err = env.Update(func(txn *lmdb.Txn) error {
		for _, name := range buckets {
			cfg := cfgs[name]
			dbiFlags := uint(lmdb.Create) | cfg.Flags
			dbi, err := txn.OpenDBI(name, dbiFlags)
			if err != nil {
				return fmt.Errorf("lmdb: open dbi %s: %w", name, err)
			}
			l.dbis[name] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, err
	}

	return l, nil
}

func (l *LMDB) Close() {
	l.env.Close()
}

func (l *LMDB) View(_ context.Context, f func(tx Tx) error) error {
	return l.env.View(func(txn *lmdb.Txn) error {
		txn.RawRead = true
		return f(&lmdbTx{l: l, txn: txn})
	})
}

func (l *LMDB) Update(_ context.Context, f func(tx Tx) error) error {
	if l.ro {
		return fmt.Errorf("lmdb: %w", layerr.ErrReadOnly)
	}
	return l.env.Update(func(txn *lmdb.Txn) error {
		return f(&lmdbTx{l: l, txn: txn})
	})
}

type lmdbTx struct {
	l   *LMDB
	txn *lmdb.Txn
}

func (t *lmdbTx) dbi(bucket Bucket) lmdb.DBI { return t.l.dbis[bucket] }

func (t *lmdbTx) Get(bucket Bucket, k []byte) ([]byte, error) {
	v, err := t.txn.Get(t.dbi(bucket), k)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (t *lmdbTx) Put(bucket Bucket, k, v []byte) error {
	return t.txn.Put(t.dbi(bucket), k, v, 0)
}

func (t *lmdbTx) Delete(bucket Bucket, k []byte) error {
	err := t.txn.Del(t.dbi(bucket), k, nil)
	if lmdb.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *lmdbTx) Replace(bucket Bucket, k, newV []byte) ([]byte, error) {
	old, err := t.Get(bucket, k)
	if err != nil {
		return nil, err
	}
	if err := t.Put(bucket, k, newV); err != nil {
		return nil, err
	}
	return old, nil
}

func (t *lmdbTx) Pop(bucket Bucket, k []byte) ([]byte, error) {
	old, err := t.Get(bucket, k)
	if err != nil || old == nil {
		return old, err
	}
	if err := t.Delete(bucket, k); err != nil {
		return nil, err
	}
	return old, nil
}

func (t *lmdbTx) DeleteExact(bucket Bucket, k, v []byte) error {
	err := t.txn.Del(t.dbi(bucket), k, v)
	if lmdb.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *lmdbTx) Cursor(bucket Bucket) Cursor {
	c, err := t.txn.OpenCursor(t.dbi(bucket))
	if err != nil {
		return &errCursor{err: err}
	}
	return &lmdbCursor{c: c}
}

func (t *lmdbTx) Commit() error { return nil } // committed by env.Update on f's return
func (t *lmdbTx) Rollback()     {}

type errCursor struct{ err error }

func (c *errCursor) Seek([]byte) ([]byte, []byte, error)      { return nil, nil, c.err }
func (c *errCursor) SeekExact([]byte) ([]byte, error)         { return nil, c.err }
func (c *errCursor) First() ([]byte, []byte, error)           { return nil, nil, c.err }
func (c *errCursor) Next() ([]byte, []byte, error)            { return nil, nil, c.err }
func (c *errCursor) Prev() ([]byte, []byte, error)            { return nil, nil, c.err }
func (c *errCursor) Last() ([]byte, []byte, error)            { return nil, nil, c.err }
func (c *errCursor) Current() ([]byte, []byte, error)         { return nil, nil, c.err }
func (c *errCursor) Put([]byte, []byte) error                 { return c.err }
func (c *errCursor) Delete([]byte) error                      { return c.err }
func (c *errCursor) Count() (uint64, error)                   { return 0, c.err }
func (c *errCursor) Close()                                   {}

type lmdbCursor struct{ c *lmdb.Cursor }

func (c *lmdbCursor) Close() { c.c.Close() }

func norm(k, v []byte, err error) ([]byte, []byte, error) {
	if lmdb.IsNotFound(err) {
		return nil, nil, nil
	}
	return k, v, err
}

func (c *lmdbCursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(seek, nil, lmdb.SetRange)
	return norm(k, v, err)
}

func (c *lmdbCursor) SeekExact(seek []byte) ([]byte, error) {
	_, v, err := c.c.Get(seek, nil, lmdb.Set)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (c *lmdbCursor) First() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.First)
	return norm(k, v, err)
}

func (c *lmdbCursor) Last() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.Last)
	return norm(k, v, err)
}

func (c *lmdbCursor) Current() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.GetCurrent)
	return norm(k, v, err)
}

func (c *lmdbCursor) Next() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.Next)
	return norm(k, v, err)
}

func (c *lmdbCursor) Prev() ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, lmdb.Prev)
	return norm(k, v, err)
}

func (c *lmdbCursor) Put(k, v []byte) error {
	return c.c.Put(k, v, 0)
}

func (c *lmdbCursor) Delete(k []byte) error {
	if _, _, err := c.c.Get(k, nil, lmdb.Set); err != nil {
		if lmdb.IsNotFound(err) {
			return nil
		}
		return err
	}
	return c.c.Del(0)
}

func (c *lmdbCursor) Count() (uint64, error) {
	return c.c.Count()
}
