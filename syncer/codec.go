// Package syncer implements the Upstream Syncer (component U in spec.md
// §4.6): a per-upstream-peer task that seeds a fresh layer from a peer's
// full state, then follows its node-edit log. Ported from layer.py's
// _initUpstreamSync / the upstream follow loop, transported over gRPC the
// way the teacher's ethdb/remote package transports its own backend RPCs
// (grpc.ClientConnInterface.Invoke against a bare method path, no protoc
// step available in this environment).
package syncer

import (
	"github.com/ledgerwatch/graphlayer/mpk"
	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc's encoding package so every call on a
// connection built with grpc.CallContentSubtype(codecName) marshals
// request/response messages with our own msgpack handle instead of
// protobuf, matching the wire shapes already used for the node-edit log.
const codecName = "mpk"

// MPKCodec is the grpc.Codec that (de)serializes every Peer RPC message
// with mpk instead of protobuf. Exported so the server side (package rpc)
// can pass it to grpc.ForceServerCodec and stay wire-compatible with
// grpcPeerClient without a second registration.
type MPKCodec struct{}

func (MPKCodec) Marshal(v interface{}) ([]byte, error) {
	return mpk.Marshal(v)
}

func (MPKCodec) Unmarshal(data []byte, v interface{}) error {
	return mpk.Unmarshal(data, v)
}

func (MPKCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(MPKCodec{})
}
