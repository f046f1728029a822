package layer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/stortype"
)

func TestLayerIterFormRowsWalksEveryNodeOfForm(t *testing.T) {
	require := require.New(t)
	l := newTestLayer(t)
	ctx := context.Background()
	b1, b2 := testBuid(1), testBuid(2)

	addNode(t, l, b1, "inet:fqdn", "woot.com")
	addNode(t, l, b2, "inet:fqdn", "vertex.link")

	got := map[Buid]interface{}{}
	require.NoError(l.backend.View(ctx, func(tx kv.Tx) error {
		return l.IterFormRows(ctx, tx, "inet:fqdn", func(buid Buid, valu interface{}) (bool, error) {
			got[buid] = valu
			return true, nil
		})
	}))
	require.Equal(map[Buid]interface{}{b1: "woot.com", b2: "vertex.link"}, got)
}

func TestLayerIterPropRowsWalksOnlyNodesCarryingProp(t *testing.T) {
	require := require.New(t)
	l := newTestLayer(t)
	ctx := context.Background()
	b1, b2 := testBuid(1), testBuid(2)

	addNode(t, l, b1, "inet:fqdn", "woot.com")
	addNode(t, l, b2, "inet:fqdn", "vertex.link")
	_, err := l.StorNodeEdits(ctx, []NodeEdit{{Buid: b1, Form: "inet:fqdn", Edits: []Edit{
		{Kind: EditPropSet, Payload: PropSetPayload{Prop: "zone", Valu: true, StorType: stortype.U8}},
	}}}, Meta{})
	require.NoError(err)

	got := map[Buid]interface{}{}
	require.NoError(l.backend.View(ctx, func(tx kv.Tx) error {
		return l.IterPropRows(ctx, tx, "inet:fqdn", "zone", func(buid Buid, valu interface{}) (bool, error) {
			got[buid] = valu
			return true, nil
		})
	}))
	require.Equal(map[Buid]interface{}{b1: true}, got)
}

func TestLayerIterUnivRowsWalksAcrossForms(t *testing.T) {
	require := require.New(t)
	l := newTestLayer(t)
	ctx := context.Background()
	b1, b2 := testBuid(1), testBuid(2)

	addNode(t, l, b1, "inet:fqdn", "woot.com")
	addNode(t, l, b2, "inet:ipv4", "1.2.3.4")

	got := map[Buid]bool{}
	require.NoError(l.backend.View(ctx, func(tx kv.Tx) error {
		return l.IterUnivRows(ctx, tx, ".created", func(buid Buid, valu interface{}) (bool, error) {
			got[buid] = true
			return true, nil
		})
	}))
	require.True(got[b1])
	require.True(got[b2])
}
