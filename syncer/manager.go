package syncer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerwatch/graphlayer/layer"
	"github.com/ledgerwatch/graphlayer/metrics"
)

// Manager runs one Upstream per configured peer URL and exposes the shared
// offset tracker for waitUpstreamOffs callers.
type Manager struct {
	offsets *OffsetTracker
	group   *errgroup.Group
}

// NewManager starts one Upstream goroutine per url against target, all
// sharing a single OffsetTracker. Every goroutine stops when ctx is
// canceled; call Wait to block until they have all exited. Upstream.Run
// never returns an error (cancellation is silent), so the errgroup here is
// only ever used for its WaitGroup-plus-shared-context behavior.
//
// layerMetrics is optional (pass nil to skip); when given, it's wired into
// every Upstream so sync errors and offset progress surface as
// graphlayer_upstream_errors_total/graphlayer_upstream_offset.
func NewManager(ctx context.Context, urls []string, target *layer.Layer, dial Dialer, layerMetrics ...*metrics.Layer) *Manager {
	var lm *metrics.Layer
	if len(layerMetrics) > 0 {
		lm = layerMetrics[0]
	}

	group, gctx := errgroup.WithContext(ctx)
	m := &Manager{offsets: NewOffsetTracker(), group: group}
	for _, url := range urls {
		up := NewUpstream(url, target, dial, m.offsets)
		up.SetMetrics(lm)
		group.Go(func() error {
			up.Run(gctx)
			return nil
		})
	}
	return m
}

// Offsets exposes the shared tracker so a collaborator can call
// WaitUpstreamOffs(peerIden, targetOffs).
func (m *Manager) Offsets() *OffsetTracker { return m.offsets }

// Wait blocks until every upstream goroutine has exited (i.e. the context
// passed to NewManager was canceled).
func (m *Manager) Wait() { _ = m.group.Wait() }
