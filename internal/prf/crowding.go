package prf

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// CrowdingIndex answers "does this source have a close neighbour" queries
// over a fixed set of source positions.
type CrowdingIndex struct {
	distance  float64
	tree      *kdtree.Tree
	positions []kdtree.Point // build order, kdtree.New reorders its input
}

// NewCrowdingIndex builds the index once from all source positions.
// Sources closer than or exactly at crowdingDistance are crowded.
func NewCrowdingIndex(sources []Source, crowdingDistance float64) *CrowdingIndex {
	ci := &CrowdingIndex{
		distance:  crowdingDistance,
		positions: make([]kdtree.Point, len(sources)),
	}
	if len(sources) == 0 {
		return ci
	}

	pts := make(kdtree.Points, len(sources))
	for i, s := range sources {
		ci.positions[i] = kdtree.Point{s.X, s.Y}
		pts[i] = kdtree.Point{s.X, s.Y}
	}
	ci.tree = kdtree.New(pts, false)
	return ci
}

// Len returns the number of indexed sources.
func (ci *CrowdingIndex) Len() int { return len(ci.positions) }

// CountWithin returns how many indexed sources lie within distance of
// (x, y). The interval is closed: a source at exactly distance counts.
func (ci *CrowdingIndex) CountWithin(x, y, distance float64) int {
	if ci.tree == nil || distance < 0 {
		return 0
	}

	// kdtree.Point distances are squared.
	keep := kdtree.NewDistKeeper(distance * distance)
	ci.tree.NearestSet(keep, kdtree.Point{x, y})

	count := 0
	for _, c := range keep.Heap {
		if c.Comparable != nil {
			count++
		}
	}
	return count
}

// Distance returns the crowding distance the index was built with.
func (ci *CrowdingIndex) Distance() float64 { return ci.distance }

// IsCrowded reports whether more than one indexed source (the source
// itself included) lies within the crowding distance of s.
func (ci *CrowdingIndex) IsCrowded(s Source) bool {
	return ci.CountWithin(s.X, s.Y, ci.distance) > 1
}

// CrowdedFlags returns IsCrowded for every indexed source, in build order.
func (ci *CrowdingIndex) CrowdedFlags() []bool {
	flags := make([]bool, len(ci.positions))
	for i, p := range ci.positions {
		flags[i] = ci.CountWithin(p[0], p[1], ci.distance) > 1
	}
	return flags
}
