package cull

import (
	"slices"

	"github.com/dhconnelly/rtreego"

	"geolayers/internal/geom"
)

// R-tree rectangles need non-zero sides.
const pointEpsilon = 1e-9

type indexedPoint struct {
	index int
	rect  rtreego.Rect
}

func (p *indexedPoint) Bounds() rtreego.Rect {
	return p.rect
}

// spatialIndex holds the Point features of a collection, by position in that collection.
type spatialIndex struct {
	rtree    *rtreego.Rtree
	features []geom.Feature
	size     int
}

func newSpatialIndex(features []geom.Feature) *spatialIndex {
	idx := &spatialIndex{
		rtree:    rtreego.NewTree(2, 25, 50),
		features: features,
	}

	for i, f := range features {
		p, ok := f.Point()
		if !ok || f.Invalid {
			continue
		}
		corner := rtreego.Point{p.Lon() - pointEpsilon/2, p.Lat() - pointEpsilon/2}
		rect, err := rtreego.NewRect(corner, []float64{pointEpsilon, pointEpsilon})
		if err != nil {
			continue
		}
		idx.rtree.Insert(&indexedPoint{index: i, rect: rect})
		idx.size++
	}

	return idx
}

func (idx *spatialIndex) Size() int {
	return idx.size
}

// Within returns the collection indices, ascending, of every Point feature inside b.
func (idx *spatialIndex) Within(b geom.BBox) []int {
	if idx.size == 0 || b.Empty() {
		return nil
	}

	// rtreego does not report rectangles that only touch the query
	lengths := []float64{
		b.MaxX - b.MinX + 2*pointEpsilon,
		b.MaxY - b.MinY + 2*pointEpsilon,
	}
	query, err := rtreego.NewRect(rtreego.Point{b.MinX - pointEpsilon, b.MinY - pointEpsilon}, lengths)
	if err != nil {
		return nil
	}

	candidates := idx.rtree.SearchIntersect(query)

	result := make([]int, 0, len(candidates))
	for _, c := range candidates {
		i := c.(*indexedPoint).index
		p, _ := idx.features[i].Point()
		if b.Contains(p.Lon(), p.Lat()) {
			result = append(result, i)
		}
	}

	slices.Sort(result)
	return result
}
