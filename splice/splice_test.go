package splice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/graphlayer/kv"
	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/stortype"
)

func testBuid(n byte) layer.Buid {
	var b layer.Buid
	b[len(b)-1] = n
	return b
}

func TestFlattenNodeAddCarriesFormValu(t *testing.T) {
	require := require.New(t)
	b := testBuid(1)

	changes := []layer.AppliedNodeEdit{{
		Buid: b, Form: "inet:fqdn",
		Changed: []layer.Edit{
			{Kind: layer.EditNodeAdd, Payload: layer.NodeAddPayload{Valu: "woot.com", StorType: stortype.UTF8}},
		},
	}}

	var got []Splice
	err := Flatten(context.Background(), nil, 5, changes, layer.Meta{"user": "root"}, nil, func(sp Splice) (bool, error) {
		got = append(got, sp)
		return true, nil
	})
	require.NoError(err)
	require.Len(got, 1)
	require.Equal(NodeAdd, got[0].Kind)
	require.Equal("woot.com", got[0].Info.FormValu)
	require.Equal(Offset{LogOffs: 5, NodeIndex: 0, EditIndex: 0}, got[0].Offset)
}

func TestFlattenPropSetReusesFormValuFromSameBatch(t *testing.T) {
	require := require.New(t)
	b := testBuid(1)

	changes := []layer.AppliedNodeEdit{{
		Buid: b, Form: "inet:fqdn",
		Changed: []layer.Edit{
			{Kind: layer.EditNodeAdd, Payload: layer.NodeAddPayload{Valu: "woot.com", StorType: stortype.UTF8}},
			{Kind: layer.EditPropSet, Payload: layer.PropSetPayload{Prop: "zone", Valu: true, StorType: stortype.U8}},
		},
	}}

	var got []Splice
	err := Flatten(context.Background(), nil, 0, changes, layer.Meta{}, nil, func(sp Splice) (bool, error) {
		got = append(got, sp)
		return true, nil
	})
	require.NoError(err)
	require.Len(got, 2)
	require.Equal(PropSet, got[1].Kind)
	require.Equal("woot.com", got[1].Info.FormValu)
	require.Equal("zone", got[1].Info.Prop)
}

func TestFlattenPropSetFallsBackToLookupWhenFormValuMissing(t *testing.T) {
	require := require.New(t)
	b := testBuid(1)

	changes := []layer.AppliedNodeEdit{{
		Buid: b, Form: "inet:fqdn",
		Changed: []layer.Edit{
			{Kind: layer.EditPropSet, Payload: layer.PropSetPayload{Prop: "zone", Valu: true, StorType: stortype.U8}},
		},
	}}

	lookupCalled := false
	lookup := func(tx kv.Tx, buid layer.Buid) (interface{}, error) {
		lookupCalled = true
		require.Equal(b, buid)
		return "woot.com", nil
	}

	var got []Splice
	err := Flatten(context.Background(), nil, 0, changes, layer.Meta{}, lookup, func(sp Splice) (bool, error) {
		got = append(got, sp)
		return true, nil
	})
	require.NoError(err)
	require.True(lookupCalled)
	require.Equal("woot.com", got[0].Info.FormValu)
}

func TestFlattenSkipsNodeDataEdits(t *testing.T) {
	require := require.New(t)
	b := testBuid(1)

	changes := []layer.AppliedNodeEdit{{
		Buid: b, Form: "inet:fqdn",
		Changed: []layer.Edit{
			{Kind: layer.EditNodeDataSet, Payload: layer.NodeDataSetPayload{Name: "blob", Valu: []byte("x")}},
		},
	}}

	var got []Splice
	err := Flatten(context.Background(), nil, 0, changes, layer.Meta{}, nil, func(sp Splice) (bool, error) {
		got = append(got, sp)
		return true, nil
	})
	require.NoError(err)
	require.Empty(got)
}

func TestFlattenStopsWhenYieldReturnsFalse(t *testing.T) {
	require := require.New(t)
	b := testBuid(1)

	changes := []layer.AppliedNodeEdit{{
		Buid: b, Form: "inet:fqdn",
		Changed: []layer.Edit{
			{Kind: layer.EditNodeAdd, Payload: layer.NodeAddPayload{Valu: "a", StorType: stortype.UTF8}},
			{Kind: layer.EditPropSet, Payload: layer.PropSetPayload{Prop: "p", Valu: 1, StorType: stortype.U8}},
		},
	}}

	var got []Splice
	err := Flatten(context.Background(), nil, 0, changes, layer.Meta{}, nil, func(sp Splice) (bool, error) {
		got = append(got, sp)
		return false, nil
	})
	require.NoError(err)
	require.Len(got, 1)
}
