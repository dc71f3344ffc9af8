package geom

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb/encoding/wkt"
)

// Key derives the identity used to reconcile rendered entities across recomputations.
// Points at identical coordinates without an id share a key. Other geometries are keyed
// by the center of their bound, their type and a hash of their coordinates.
//
// Features without usable geometry get a key built from their position in the
// collection and a hash of their content, so it is stable across recomputations as long
// as the collection is unchanged.
func Key(f Feature, index int) string {
	if p, ok := f.Point(); ok {
		return fmt.Sprintf("%.7f:%.7f:%s", p.Lat(), p.Lon(), f.KeyID())
	}
	if p, ok := f.Anchor(); ok {
		shape := xxhash.Sum64String(wkt.MarshalString(f.Geometry))
		return fmt.Sprintf("%.7f:%.7f:%s:%s:%016x", p.Lat(), p.Lon(), f.KeyID(), f.Geometry.GeoJSONType(), shape)
	}

	h := xxhash.New()
	h.WriteString(f.Type)
	h.WriteString("\x00")
	h.WriteString(f.KeyID())
	if b, err := json.Marshal(f.Properties); err == nil {
		h.Write(b)
	}
	return fmt.Sprintf("nogeom:%d:%016x", index, h.Sum64())
}
