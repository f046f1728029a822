package dbutils

import (
	"sort"
	"testing"

	"github.com/ledgerwatch/lmdb-go/lmdb"
	"github.com/stretchr/testify/require"
)

func TestBucketsIsSorted(t *testing.T) {
	require := require.New(t)
	require.True(sort.StringsAreSorted(Buckets))
}

func TestDefaultBucketsCoversEveryBucket(t *testing.T) {
	require := require.New(t)
	cfg := DefaultBuckets()
	require.Len(cfg, len(Buckets))
	for _, name := range Buckets {
		_, ok := cfg[name]
		require.True(ok, "missing config for bucket %q", name)
	}
}

func TestDefaultBucketsMarksOnlySecondaryIndexesDupSort(t *testing.T) {
	require := require.New(t)
	cfg := DefaultBuckets()

	dupsort := map[string]bool{ByProp: true, ByArray: true, ByTag: true, ByTagProp: true}
	for _, name := range Buckets {
		if dupsort[name] {
			require.Equal(uint(lmdb.DupSort), cfg[name].Flags, "bucket %q should be dupsort", name)
		} else {
			require.Equal(uint(0), cfg[name].Flags, "bucket %q should not be dupsort", name)
		}
	}
}
