// Package migrations applies named, idempotent upgrade steps against an
// already-open layer backend before it starts serving reads or writes.
// Adapted from the teacher's migrations.Migrator (same skip-applied /
// record-applied shape), re-themed from chain-sync stage progress onto
// the model-version bump spec.md §6 describes: "Model version. Stored
// under layer info as model:version = (major, minor, patch); never
// altered by the core except via explicit setModelVers."
package migrations

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/rs/zerolog"
)

// Migration is one named, idempotent upgrade step. Up runs inside its own
// write transaction; returning nil commits and records the migration as
// applied, a non-nil error rolls back and aborts the whole Apply call.
type Migration struct {
	Name string
	Up   func(ctx context.Context, tx kv.Tx, l *layer.Layer) error
}

// registered lists every migration in application order. Idempotency is
// expected of each Up func: migrations apply once per fresh backend and
// never again.
var registered = []Migration{}

// NewMigrator builds a Migrator over the built-in migration list.
func NewMigrator() *Migrator {
	return &Migrator{Migrations: registered}
}

// Migrator runs a Migrations list against a backend, skipping any name
// already recorded in dbutils.Migrations.
type Migrator struct {
	Migrations []Migration
}

// Apply runs every not-yet-applied migration against l's backend, in
// order, logging each one. A layer with no registered migrations is a
// no-op.
func (m *Migrator) Apply(ctx context.Context, backend kv.KV, l *layer.Layer, log zerolog.Logger) error {
	if len(m.Migrations) == 0 {
		return nil
	}

	applied := map[string]bool{}
	err := backend.View(ctx, func(tx kv.Tx) error {
		cur := tx.Cursor(dbutils.Migrations)
		defer cur.Close()
		var err error
		for k, _, e := cur.First(); k != nil; k, _, e = cur.Next() {
			if e != nil {
				err = e
				break
			}
			applied[string(k)] = true
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("migrations: listing applied: %w", err)
	}

	for _, mg := range m.Migrations {
		if applied[mg.Name] {
			continue
		}
		log.Info().Str("migration", mg.Name).Msg("applying migration")

		err := backend.Update(ctx, func(tx kv.Tx) error {
			if err := mg.Up(ctx, tx, l); err != nil {
				return err
			}
			return tx.Put(dbutils.Migrations, []byte(mg.Name), []byte{1})
		})
		if err != nil {
			return fmt.Errorf("migrations: applying %s: %w", mg.Name, err)
		}

		log.Info().Str("migration", mg.Name).Msg("applied migration")
	}
	return nil
}
