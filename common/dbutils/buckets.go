// Package dbutils names the sub-databases of a layer's LMDB environment and
// the dup-sort flags each one needs. Adapted from turbo-geth's bucket table
// (common/dbutils/bucket.go), re-themed from Ethereum chain-state buckets to
// the graph-layer row kinds described in spec.md §3 and §6.
package dbutils

import (
	"sort"
	"strings"

	"github.com/ledgerwatch/lmdb-go/lmdb"
)

// Buckets in the main layer_v2.lmdb environment.
const (
	// ByBuid stores the primary node rows:
	//   buid+0x00 -> msgpack(form, value, stortype)        ndef row
	//   buid+0x01+propname -> msgpack(value, stortype)     prop row
	//   buid+0x02+tagname -> msgpack(value)                tag row
	//   buid+0x03+tag+':'+propname -> msgpack(value, stortype)  tagprop row
	ByBuid = "bybuid"

	// ByProp is a dup-sort secondary index: A(form,prop) ++ indx -> buid.
	ByProp = "byprop"

	// ByArray is a dup-sort secondary index, one row per array element:
	// A(form,prop) ++ indx(elem) -> buid.
	ByArray = "byarray"

	// ByTag is a dup-sort membership index: A_tag(tag) ++ A(form,None) -> buid.
	ByTag = "bytag"

	// ByTagProp is a dup-sort index with three abbreviation variants per
	// value, keyed A(.,.,prop)/A(.,tag,prop)/A(form,tag,prop) ++ indx -> buid.
	ByTagProp = "bytagprop"

	// NodeData stores opaque blobs: buid ++ A(name,None) -> msgpack(value).
	NodeData = "nodedata"

	// Counters backs the Hot Counter component (H): per-form node counts and
	// named offsets such as "nodeedit:applied".
	Counters = "counters"

	// PropAbrv / TagAbrv / TagPropAbrv hold the Name Abbreviator's forward
	// and reverse mappings. Each logical abbreviator gets one forward table
	// (name->id) and one reverse table (id->name).
	PropAbrvFwd    = "propabrv"
	PropAbrvRev    = "propabrv.rev"
	TagAbrvFwd     = "tagabrv"
	TagAbrvRev     = "tagabrv.rev"
	TagPropAbrvFwd = "tagpropabrv"
	TagPropAbrvRev = "tagpropabrv.rev"

	// Model holds small layer metadata: iden, model:version, peer offsets.
	Model = "model"

	// Migrations records which named schema migrations have already been
	// applied, so Migrator.Apply can skip them on the next startup.
	Migrations = "migrations"
)

// NodeEdits and Splices live in their own LMDB environments
// (nodeedits.lmdb, splices.lmdb) per spec.md §6; each has exactly one
// database, named for clarity when enumerating sub-databases generically.
const (
	NodeEditLog = "nodeedits"
	SpliceLog   = "splices"
)

// Buckets lists every sub-database of layer_v2.lmdb that must exist before
// the layer accepts reads or writes. Sorted in init() the way the teacher
// sorts its own Buckets slice, so iteration order is stable across runs.
var Buckets = []string{
	ByBuid,
	ByProp,
	ByArray,
	ByTag,
	ByTagProp,
	NodeData,
	Counters,
	PropAbrvFwd,
	PropAbrvRev,
	TagAbrvFwd,
	TagAbrvRev,
	TagPropAbrvFwd,
	TagPropAbrvRev,
	Model,
	Migrations,
}

// BucketConfigItem mirrors the teacher's BucketConfigItem: just the LMDB
// open flags a bucket needs. DupSort buckets may hold many values per key
// (used here for every secondary index, since one indx key commonly maps to
// more than one buid and one buid commonly appears under more than one
// index key).
type BucketConfigItem struct {
	Flags uint
	DBI   lmdb.DBI
}

type BucketsCfg map[string]BucketConfigItem

// BucketsConfigs is the canonical flags table. Every *By* secondary index is
// DupSort; bybuid, nodedata, counters, abbreviator tables, and model are
// plain (one value per key).
var BucketsConfigs = BucketsCfg{
	ByProp:    {Flags: lmdb.DupSort},
	ByArray:   {Flags: lmdb.DupSort},
	ByTag:     {Flags: lmdb.DupSort},
	ByTagProp: {Flags: lmdb.DupSort},
}

func init() {
	sortBuckets()
}

func sortBuckets() {
	sort.SliceStable(Buckets, func(i, j int) bool {
		return strings.Compare(Buckets[i], Buckets[j]) < 0
	})
}

// DefaultBuckets returns the canonical bucket->flags table, filling in a
// zero-value entry (plain, no dup-sort) for any bucket not explicitly
// configured.
func DefaultBuckets() BucketsCfg {
	out := make(BucketsCfg, len(Buckets))
	for _, name := range Buckets {
		if cfg, ok := BucketsConfigs[name]; ok {
			out[name] = cfg
			continue
		}
		out[name] = BucketConfigItem{}
	}
	return out
}
