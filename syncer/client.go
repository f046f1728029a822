package syncer

import (
	"context"

	"github.com/ledgerwatch/graphlayer/layer"
	"google.golang.org/grpc"
)

// IdenReply is the wire shape of GetIden's response.
type IdenReply struct {
	Iden string
}

// OffsetReply is the wire shape of GetNodeEditOffset's response.
type OffsetReply struct {
	Offs int64
}

// NodeEditBatchMsg is one SyncNodeEdits stream item.
type NodeEditBatchMsg struct {
	Offs    uint64
	Changes []layer.AppliedNodeEdit
}

// NodeEditMsg is one IterLayerNodeEdits stream item.
type NodeEditMsg struct {
	Buid  layer.Buid
	Form  string
	Edits []layer.Edit
}

// PeerClient is everything the syncer state machine needs from a remote
// layer, matching the "API exposed to collaborators" entries spec.md §6
// lists for cross-layer replication. A fake implementation backs the
// package's tests; grpcPeerClient is the production transport.
type PeerClient interface {
	GetIden(ctx context.Context) (string, error)
	GetNodeEditOffset(ctx context.Context) (int64, error)
	IterLayerNodeEdits(ctx context.Context) (<-chan NodeEditMsg, <-chan error)
	SyncNodeEdits(ctx context.Context, fromOffs uint64) (<-chan NodeEditBatchMsg, <-chan error)
}

// grpcPeerClient talks to a peer layer's sync-facing RPC surface over a
// plain grpc.ClientConn, using the mpk codec registered in codec.go instead
// of protobuf — there is no .proto/codegen step in this environment, so
// request/response/stream messages are the same Go structs used
// in-process, the way the teacher's ethdb/remote client invokes bare method
// paths against its ClientConnInterface.
type grpcPeerClient struct {
	conn *grpc.ClientConn
}

// NewGRPCPeerClient wraps an already-dialed connection (dial with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)) so every
// call on it uses the mpk codec).
func NewGRPCPeerClient(conn *grpc.ClientConn) PeerClient {
	return &grpcPeerClient{conn: conn}
}

func (c *grpcPeerClient) GetIden(ctx context.Context) (string, error) {
	var out IdenReply
	if err := c.conn.Invoke(ctx, "/graphlayer.Peer/GetIden", struct{}{}, &out); err != nil {
		return "", err
	}
	return out.Iden, nil
}

func (c *grpcPeerClient) GetNodeEditOffset(ctx context.Context) (int64, error) {
	var out OffsetReply
	if err := c.conn.Invoke(ctx, "/graphlayer.Peer/GetNodeEditOffset", struct{}{}, &out); err != nil {
		return 0, err
	}
	return out.Offs, nil
}

func (c *grpcPeerClient) IterLayerNodeEdits(ctx context.Context) (<-chan NodeEditMsg, <-chan error) {
	items := make(chan NodeEditMsg, followQueueSize)
	errc := make(chan error, 1)

	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, "/graphlayer.Peer/IterLayerNodeEdits")
	if err != nil {
		errc <- err
		close(items)
		return items, errc
	}
	if err := stream.SendMsg(struct{}{}); err != nil {
		errc <- err
		close(items)
		return items, errc
	}
	if err := stream.CloseSend(); err != nil {
		errc <- err
		close(items)
		return items, errc
	}

	go func() {
		defer close(items)
		for {
			var msg NodeEditMsg
			if err := stream.RecvMsg(&msg); err != nil {
				if err.Error() != "EOF" {
					errc <- err
				}
				return
			}
			select {
			case items <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return items, errc
}

func (c *grpcPeerClient) SyncNodeEdits(ctx context.Context, fromOffs uint64) (<-chan NodeEditBatchMsg, <-chan error) {
	items := make(chan NodeEditBatchMsg, followQueueSize)
	errc := make(chan error, 1)

	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, "/graphlayer.Peer/SyncNodeEdits")
	if err != nil {
		errc <- err
		close(items)
		return items, errc
	}
	if err := stream.SendMsg(struct{ FromOffs uint64 }{FromOffs: fromOffs}); err != nil {
		errc <- err
		close(items)
		return items, errc
	}
	if err := stream.CloseSend(); err != nil {
		errc <- err
		close(items)
		return items, errc
	}

	go func() {
		defer close(items)
		for {
			var msg NodeEditBatchMsg
			if err := stream.RecvMsg(&msg); err != nil {
				if err.Error() != "EOF" {
					errc <- err
				}
				return
			}
			select {
			case items <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return items, errc
}
