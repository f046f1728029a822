package abrv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/graphlayer/kv"
)

const (
	fwdBucket = "fwd"
	revBucket = "rev"
)

func newTestKV() kv.KV {
	return kv.NewMemKV([]kv.Bucket{fwdBucket, revBucket}, nil)
}

func TestAbrvAllocatesOnceAndReuses(t *testing.T) {
	require := require.New(t)
	backend := newTestKV()
	ctx := context.Background()
	a := New(fwdBucket, revBucket)

	var first, second []byte
	require.NoError(backend.Update(ctx, func(tx kv.Tx) error {
		require.NoError(a.Prime(tx))
		var err error
		first, err = a.BytsToAbrv(tx, []byte("hello"))
		require.NoError(err)
		second, err = a.BytsToAbrv(tx, []byte("hello"))
		return err
	}))
	require.Equal(first, second)

	require.NoError(backend.View(ctx, func(tx kv.Tx) error {
		byts, err := a.AbrvToByts(tx, first)
		require.NoError(err)
		require.Equal([]byte("hello"), byts)
		return nil
	}))
}

func TestAbrvDistinctKeysGetDistinctIDs(t *testing.T) {
	require := require.New(t)
	backend := newTestKV()
	ctx := context.Background()
	a := New(fwdBucket, revBucket)

	var idA, idB []byte
	require.NoError(backend.Update(ctx, func(tx kv.Tx) error {
		require.NoError(a.Prime(tx))
		var err error
		idA, err = a.BytsToAbrv(tx, []byte("a"))
		require.NoError(err)
		idB, err = a.BytsToAbrv(tx, []byte("b"))
		return err
	}))
	require.NotEqual(idA, idB)
}

func TestAbrvPrimeRecoversAfterRestart(t *testing.T) {
	require := require.New(t)
	backend := newTestKV()
	ctx := context.Background()

	var firstID []byte
	require.NoError(backend.Update(ctx, func(tx kv.Tx) error {
		a := New(fwdBucket, revBucket)
		require.NoError(a.Prime(tx))
		var err error
		firstID, err = a.BytsToAbrv(tx, []byte("x"))
		return err
	}))

	// A fresh Abrv instance (empty cache, zero nextSeq) over the same
	// backend must prime past the id already handed out, not reallocate it.
	require.NoError(backend.Update(ctx, func(tx kv.Tx) error {
		a := New(fwdBucket, revBucket)
		require.NoError(a.Prime(tx))
		id, err := a.BytsToAbrv(tx, []byte("y"))
		require.NoError(err)
		require.NotEqual(firstID, id)

		same, err := a.BytsToAbrv(tx, []byte("x"))
		require.NoError(err)
		require.Equal(firstID, same)
		return nil
	}))
}

func TestAbrvToBytsUnknownErrors(t *testing.T) {
	require := require.New(t)
	backend := newTestKV()
	ctx := context.Background()
	a := New(fwdBucket, revBucket)

	require.NoError(backend.View(ctx, func(tx kv.Tx) error {
		_, err := a.AbrvToByts(tx, encodeID(999))
		require.Error(err)
		return nil
	}))
}
