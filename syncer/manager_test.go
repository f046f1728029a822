package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/graphlayer/common/dbutils"
	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/seqlog"
)

func newTestLayer(t *testing.T) *layer.Layer {
	t.Helper()
	require := require.New(t)

	buckets := append([]string{}, dbutils.Buckets...)
	buckets = append(buckets, dbutils.NodeEditLog)
	dup := map[string]bool{
		dbutils.ByProp:    true,
		dbutils.ByArray:   true,
		dbutils.ByTag:     true,
		dbutils.ByTagProp: true,
	}
	backend := kv.NewMemKV(buckets, dup)
	ctx := context.Background()

	var edits *seqlog.Seqlog
	require.NoError(backend.Update(ctx, func(tx kv.Tx) error {
		var err error
		edits, err = seqlog.Open(tx, dbutils.NodeEditLog)
		return err
	}))

	l, err := layer.Open(ctx, backend, edits, layer.Config{})
	require.NoError(err)
	return l
}

func TestManagerStartsOneUpstreamPerURLAndStopsOnCancel(t *testing.T) {
	require := require.New(t)
	target := newTestLayer(t)

	var dialed []string
	dial := func(ctx context.Context, url string) (PeerClient, func(), error) {
		dialed = append(dialed, url)
		return nil, nil, context.Canceled
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, []string{"peer-a", "peer-b"}, target, dial)
	require.NotNil(m.Offsets())

	cancel()
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager did not stop after context cancellation")
	}
}
