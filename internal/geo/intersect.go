package geo

// DefaultClosureWindow is the number of segments at each end of a path
// that are not tested against each other for self-intersection.
const DefaultClosureWindow = 2

// HasSelfIntersection reports whether any two non-adjacent segments of the
// open path through points properly cross.
//
// Segment i (points[i] to points[i+1]) is compared with every segment j
// where j >= i+2. Pairs where i is among the first window segments and j is
// among the last window segments are skipped, because the start and end of
// a closed loop legitimately meet. That exemption also hides a genuine
// crossing confined to those head and tail segments.
//
// Only the open path is checked; the implicit closing edge from the last
// point back to the first is not. A window below 0 is treated as 0.
func HasSelfIntersection(points []GeoPoint, window int) bool {
	if len(points) < 4 {
		return false
	}
	if window < 0 {
		window = 0
	}

	path := make([]GeoPoint, len(points))
	copy(path, points)

	segCount := len(path) - 1
	for i := 0; i < segCount; i++ {
		for j := i + 2; j < segCount; j++ {
			if i < window && j >= segCount-window {
				continue
			}
			if SegmentsIntersect(path[i], path[i+1], path[j], path[j+1]) {
				return true
			}
		}
	}
	return false
}
