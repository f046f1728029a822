package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
)

func newTestBackend() kv.KV {
	return kv.NewMemKV([]kv.Bucket{dbutils.Migrations, "data"}, nil)
}

func TestApplyRunsEachMigrationOnce(t *testing.T) {
	require := require.New(t)
	backend := newTestBackend()
	ctx := context.Background()

	var runs int
	m := &Migrator{Migrations: []Migration{
		{Name: "001-seed", Up: func(ctx context.Context, tx kv.Tx, l *layer.Layer) error {
			runs++
			return tx.Put("data", []byte("k"), []byte("v"))
		}},
	}}

	require.NoError(m.Apply(ctx, backend, nil, zerolog.Nop()))
	require.Equal(1, runs)

	// applying again against the same backend must skip the already
	// recorded migration.
	require.NoError(m.Apply(ctx, backend, nil, zerolog.Nop()))
	require.Equal(1, runs)
}

func TestApplySkipsAlreadyRecordedMigrations(t *testing.T) {
	require := require.New(t)
	backend := newTestBackend()
	ctx := context.Background()

	require.NoError(backend.Update(ctx, func(tx kv.Tx) error {
		return tx.Put(dbutils.Migrations, []byte("001-seed"), []byte{1})
	}))

	var ran bool
	m := &Migrator{Migrations: []Migration{
		{Name: "001-seed", Up: func(ctx context.Context, tx kv.Tx, l *layer.Layer) error {
			ran = true
			return nil
		}},
	}}

	require.NoError(m.Apply(ctx, backend, nil, zerolog.Nop()))
	require.False(ran)
}

func TestApplyStopsOnFirstError(t *testing.T) {
	require := require.New(t)
	backend := newTestBackend()
	ctx := context.Background()

	var secondRan bool
	m := &Migrator{Migrations: []Migration{
		{Name: "001-fails", Up: func(ctx context.Context, tx kv.Tx, l *layer.Layer) error {
			return errors.New("boom")
		}},
		{Name: "002-after", Up: func(ctx context.Context, tx kv.Tx, l *layer.Layer) error {
			secondRan = true
			return nil
		}},
	}}

	require.Error(m.Apply(ctx, backend, nil, zerolog.Nop()))
	require.False(secondRan)
}

func TestNewMigratorHasEmptyDefaultList(t *testing.T) {
	require := require.New(t)
	m := NewMigrator()
	require.NoError(m.Apply(context.Background(), newTestBackend(), nil, zerolog.Nop()))
}
