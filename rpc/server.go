// Package rpc exposes one Layer's sync-facing surface — GetIden,
// GetNodeEditOffset, IterLayerNodeEdits, SyncNodeEdits — over the same bare
// gRPC method paths syncer.grpcPeerClient invokes, using hand-registered
// grpc.ServiceDesc handlers instead of protoc-generated stubs (no .proto
// step in this environment), mirroring the teacher's ethdb/remote server
// registering raw handlers against its own ClientConnInterface surface.
package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/syncer"
)

// PeerServer backs the four RPCs a syncer.grpcPeerClient calls against a
// running layer.
type PeerServer struct {
	layer *layer.Layer
}

// NewPeerServer wraps l for RPC serving.
func NewPeerServer(l *layer.Layer) *PeerServer {
	return &PeerServer{layer: l}
}

func (s *PeerServer) getIden(ctx context.Context, dec func(interface{}) error) (interface{}, error) {
	var req struct{}
	if err := dec(&req); err != nil {
		return nil, err
	}
	iden, err := s.layer.GetIden(ctx)
	if err != nil {
		return nil, err
	}
	return syncer.IdenReply{Iden: iden}, nil
}

func (s *PeerServer) getNodeEditOffset(ctx context.Context, dec func(interface{}) error) (interface{}, error) {
	var req struct{}
	if err := dec(&req); err != nil {
		return nil, err
	}
	return syncer.OffsetReply{Offs: s.layer.GetNodeEditOffset()}, nil
}

func (s *PeerServer) iterLayerNodeEdits(srv interface{}, stream grpc.ServerStream) error {
	var req struct{}
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return s.layer.IterLayerNodeEdits(stream.Context(), func(ne layer.NodeEdit) (bool, error) {
		msg := syncer.NodeEditMsg{Buid: ne.Buid, Form: ne.Form, Edits: ne.Edits}
		if err := stream.SendMsg(&msg); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *PeerServer) syncNodeEdits(srv interface{}, stream grpc.ServerStream) error {
	var req struct{ FromOffs uint64 }
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return s.layer.SyncNodeEdits(stream.Context(), req.FromOffs, func(b layer.NodeEditBatch) (bool, error) {
		msg := syncer.NodeEditBatchMsg{Offs: b.Offs, Changes: b.Changes}
		if err := stream.SendMsg(&msg); err != nil {
			return false, err
		}
		return true, nil
	})
}

// serviceDesc wires the four methods under the /graphlayer.Peer/* paths
// syncer.grpcPeerClient invokes.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "graphlayer.Peer",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetIden",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				return srv.(*PeerServer).getIden(ctx, dec)
			},
		},
		{
			MethodName: "GetNodeEditOffset",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				return srv.(*PeerServer).getNodeEditOffset(ctx, dec)
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "IterLayerNodeEdits",
			Handler:       func(srv interface{}, stream grpc.ServerStream) error { return srv.(*PeerServer).iterLayerNodeEdits(srv, stream) },
			ServerStreams: true,
		},
		{
			StreamName:    "SyncNodeEdits",
			Handler:       func(srv interface{}, stream grpc.ServerStream) error { return srv.(*PeerServer).syncNodeEdits(srv, stream) },
			ServerStreams: true,
		},
	},
}

// Register attaches s's handlers to gs under the /graphlayer.Peer/* paths.
func Register(gs *grpc.Server, s *PeerServer) {
	gs.RegisterService(&serviceDesc, s)
}
