package syncer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/metrics"
)

const (
	followQueueSize = 1000 // spec.md §4.6: "funnel results through a bounded queue of size 1000"
	retryDelay      = time.Second
)

// Target is what a syncer applies edits to: layer.Layer satisfies this
// directly.
type Target interface {
	StorNodeEditsNoLift(ctx context.Context, nodeedits []layer.NodeEdit, meta layer.Meta) error
}

// Dialer opens a fresh PeerClient for one upstream URL; swapped out in
// tests for a fake in-process peer.
type Dialer func(ctx context.Context, url string) (PeerClient, func(), error)

// Upstream runs one peer's sync state machine for as long as ctx is live.
// Ported from layer.py's _initUpstreamSync task.
type Upstream struct {
	url     string
	target  Target
	dial    Dialer
	offsets *OffsetTracker
	metrics *metrics.Layer
}

// NewUpstream builds one upstream task. offsets is shared across every
// Upstream on a layer so waitUpstreamOffs can be queried by peer iden from
// any caller.
func NewUpstream(url string, target Target, dial Dialer, offsets *OffsetTracker) *Upstream {
	return &Upstream{url: url, target: target, dial: dial, offsets: offsets}
}

// SetMetrics wires a layer's metrics into this upstream's error/offset
// reporting. Optional; Run and follow no-op on the metrics when unset.
func (u *Upstream) SetMetrics(m *metrics.Layer) { u.metrics = m }

// Run drives the state machine until ctx is canceled: open client, seed if
// starting from offset 0, then follow. Any error besides cancellation is
// logged and retried after retryDelay, matching spec.md §4.6 step 5.
func (u *Upstream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := u.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return // cancellation: silent, no retry
			}
			if u.metrics != nil {
				u.metrics.UpstreamErrors.WithLabelValues(u.url).Inc()
			}
			log.Error().Err(err).Str("upstream", u.url).Msg("upstream sync failed, retrying")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (u *Upstream) runOnce(ctx context.Context) error {
	peer, closer, err := u.dial(ctx, u.url)
	if err != nil {
		return err
	}
	defer closer()

	peerIden, err := peer.GetIden(ctx)
	if err != nil {
		return err
	}

	localOffs := u.offsets.Get(peerIden)
	if localOffs == 0 {
		if err := u.seed(ctx, peer, peerIden); err != nil {
			return err
		}
		localOffs = u.offsets.Get(peerIden)
	}

	return u.follow(ctx, peer, peerIden, uint64(localOffs))
}

// seed asks the peer to enumerate its full current state and applies it
// locally, then records the peer's current offset, per spec.md §4.6 step 3.
func (u *Upstream) seed(ctx context.Context, peer PeerClient, peerIden string) error {
	items, errc := peer.IterLayerNodeEdits(ctx)
	for msg := range items {
		ne := layer.NodeEdit{Buid: msg.Buid, Form: msg.Form, Edits: msg.Edits}
		if err := u.target.StorNodeEditsNoLift(ctx, []layer.NodeEdit{ne}, layer.Meta{}); err != nil {
			return err
		}
	}
	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	default:
	}

	peerOffs, err := peer.GetNodeEditOffset(ctx)
	if err != nil {
		return err
	}
	u.offsets.Set(peerIden, peerOffs)
	if u.metrics != nil {
		u.metrics.UpstreamOffset.WithLabelValues(u.url).Set(float64(peerOffs))
	}
	return nil
}

// follow opens the peer's node-edit stream from fromOffs, applies each
// batch, and advances the recorded offset by one past every applied batch,
// per spec.md §4.6 step 4. The channel from SyncNodeEdits already acts as
// the bounded queue (buffered to followQueueSize in client.go).
func (u *Upstream) follow(ctx context.Context, peer PeerClient, peerIden string, fromOffs uint64) error {
	items, errc := peer.SyncNodeEdits(ctx, fromOffs)
	for msg := range items {
		nodeedits := make([]layer.NodeEdit, 0, len(msg.Changes))
		for _, ane := range msg.Changes {
			nodeedits = append(nodeedits, layer.NodeEdit{Buid: ane.Buid, Form: ane.Form, Edits: ane.Changed})
		}
		if err := u.target.StorNodeEditsNoLift(ctx, nodeedits, layer.Meta{}); err != nil {
			return err
		}
		u.offsets.Set(peerIden, int64(msg.Offs)+1)
		if u.metrics != nil {
			u.metrics.UpstreamOffset.WithLabelValues(u.url).Set(float64(msg.Offs) + 1)
		}
	}
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}
