package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestLMDB(t *testing.T) *LMDB {
	t.Helper()
	require := require.New(t)
	l, err := OpenLogLMDB(LMDBOpts{Path: t.TempDir()}, "plain")
	require.NoError(err)
	t.Cleanup(l.Close)
	return l
}

func TestLMDBPutGetDelete(t *testing.T) {
	require := require.New(t)
	l := openTestLMDB(t)
	ctx := context.Background()

	require.NoError(l.Update(ctx, func(tx Tx) error {
		return tx.Put("plain", []byte("a"), []byte("1"))
	}))

	require.NoError(l.View(ctx, func(tx Tx) error {
		v, err := tx.Get("plain", []byte("a"))
		require.NoError(err)
		require.Equal([]byte("1"), v)
		return nil
	}))

	require.NoError(l.Update(ctx, func(tx Tx) error {
		return tx.Delete("plain", []byte("a"))
	}))

	require.NoError(l.View(ctx, func(tx Tx) error {
		v, err := tx.Get("plain", []byte("a"))
		require.NoError(err)
		require.Nil(v)
		return nil
	}))
}

func TestLMDBCursorWalksInsertionOrderSorted(t *testing.T) {
	require := require.New(t)
	l := openTestLMDB(t)
	ctx := context.Background()

	require.NoError(l.Update(ctx, func(tx Tx) error {
		for _, k := range []string{"b", "a", "c"} {
			if err := tx.Put("plain", []byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []string
	require.NoError(l.View(ctx, func(tx Tx) error {
		cur := tx.Cursor("plain")
		defer cur.Close()
		for k, _, err := cur.First(); k != nil; k, _, err = cur.Next() {
			require.NoError(err)
			got = append(got, string(k))
		}
		return nil
	}))
	require.Equal([]string{"a", "b", "c"}, got)
}

func TestLMDBReadOnlyRejectsUpdate(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	l, err := OpenLogLMDB(LMDBOpts{Path: dir}, "plain")
	require.NoError(err)
	l.Close()

	ro, err := OpenLogLMDB(LMDBOpts{Path: dir, ReadOnly: true}, "plain")
	require.NoError(err)
	t.Cleanup(ro.Close)

	err = ro.Update(context.Background(), func(tx Tx) error { return nil })
	require.Error(err)
}
