package stortype

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/graphlayer/gis"
	"github.com/ledgerwatch/graphlayer/layerr"
)

// latLonScale fixes 8 decimal digits of precision (~1.1mm at the equator)
// before biasing into an unsigned 5-byte big-endian integer, matching the
// scale/size the source's StorTypeLatLon uses for each half.
const latLonScale = 100000000 // 1e8
const latLonSize = 5
const latLonBias = int64(1) << (8*latLonSize - 1)

// LatLongHandler indexes a (lat, lon) pair as lon-then-lat, each scaled and
// biased into a fixed-width unsigned integer, so that a prefix/range scan
// over longitude is a contiguous key range. Equality is exact; near=
// pre-filters via a longitude range scan (the outer, coarser axis) and then
// applies an exact haversine distance filter in Go. Ported from
// StorTypeLatLon in layer.py (_liftLatLonEq / _liftLatLonNear).
type LatLongHandler struct{}

func NewLatLongHandler() *LatLongHandler { return &LatLongHandler{} }

func (h *LatLongHandler) Code() Code { return LATLONG }

func (h *LatLongHandler) pair(valu interface{}) ([2]float64, bool) {
	switch v := valu.(type) {
	case [2]float64:
		return v, true
	case []float64:
		if len(v) == 2 {
			return [2]float64{v[0], v[1]}, true
		}
	}
	return [2]float64{}, false
}

func encodeScaled(v float64) []byte {
	scaled := int64(v*latLonScale) + latLonBias
	out := make([]byte, latLonSize)
	u := uint64(scaled)
	for i := latLonSize - 1; i >= 0; i-- {
		out[i] = byte(u)
		u >>= 8
	}
	return out
}

func (h *LatLongHandler) Indx(valu interface{}) ([]byte, error) {
	ll, ok := h.pair(valu)
	if !ok {
		return nil, fmt.Errorf("%w: LATLONG expects [2]float64 (lat, lon)", layerr.ErrBadStorType)
	}
	lat, lon := ll[0], ll[1]
	out := make([]byte, 0, 2*latLonSize)
	out = append(out, encodeScaled(lon)...)
	out = append(out, encodeScaled(lat)...)
	return out, nil
}

func (h *LatLongHandler) liftEq(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	indx, err := h.Indx(valu)
	if err != nil {
		return err
	}
	return ib.BuidsByDups(ctx, indx, yield)
}

// latLonNearArg is (lat, lon, distM).
type latLonNearArg struct {
	Lat, Lon, DistM float64
}

func (h *LatLongHandler) liftNear(ctx context.Context, ib IndxBy, valu interface{}, yield Yield) error {
	arg, ok := valu.(latLonNearArg)
	if !ok {
		if v, ok2 := valu.([3]float64); ok2 {
			arg = latLonNearArg{Lat: v[0], Lon: v[1], DistM: v[2]}
		} else {
			return fmt.Errorf("%w: LATLONG near= expects (lat, lon, distM)", layerr.ErrBadStorType)
		}
	}

	latmin, latmax, lonmin, lonmax := gis.BBox(arg.Lat, arg.Lon, arg.DistM)
	lo := encodeScaled(lonmin)
	hi := encodeScaled(lonmax)

	filtered := func(key []byte, b Buid) (bool, error) {
		if len(key) < 2*latLonSize {
			return true, nil
		}
		latBytes := key[len(key)-latLonSize:]
		var u uint64
		for _, by := range latBytes {
			u = u<<8 | uint64(by)
		}
		lat := float64(int64(u)-latLonBias) / latLonScale
		if lat < latmin || lat > latmax {
			return true, nil
		}
		valu, err := ib.GetNodeValu(ctx, b)
		if err != nil {
			return true, nil
		}
		ll, ok := h.pair(valu)
		if !ok {
			return true, nil
		}
		if gis.Haversine([2]float64{arg.Lat, arg.Lon}, [2]float64{ll[0], ll[1]}) > arg.DistM {
			return true, nil
		}
		return yield(b)
	}
	return ib.ScanByRange(ctx, lo, hi, filtered)
}

func (h *LatLongHandler) Lifters() map[string]Lifter {
	return map[string]Lifter{
		"=":     h.liftEq,
		"near=": h.liftNear,
	}
}
