package geo

import "strings"

// IndexPrecision is the geohash length stored with each territory.
// Five characters is a cell of roughly 4.9 km x 4.9 km, coarse enough that a
// walking-scale territory usually sits in a single cell.
const IndexPrecision = 5

// base32 is the geohash alphabet. It omits 'a', 'i', 'l' and 'o'.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode encodes a coordinate into a geohash of the given length.
// A precision below 1 falls back to IndexPrecision.
func Encode(p GeoPoint, precision int) string {
	if precision < 1 {
		precision = IndexPrecision
	}

	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)

	var (
		bit   int
		ch    byte
		onLng = true
	)
	for sb.Len() < precision {
		if onLng {
			mid := (lngLo + lngHi) / 2
			if p.Lng > mid {
				ch |= 1 << (4 - bit)
				lngLo = mid
			} else {
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if p.Lat > mid {
				ch |= 1 << (4 - bit)
				latLo = mid
			} else {
				latHi = mid
			}
		}
		onLng = !onLng

		bit++
		if bit == 5 {
			sb.WriteByte(base32[ch])
			bit, ch = 0, 0
		}
	}

	return sb.String()
}

// CoverHash returns the longest geohash (up to precision characters) whose
// cell contains the whole bounding box. It is the shared prefix of the
// hashes of the box's corners, and may be "" for a box that straddles a
// top-level cell boundary.
func CoverHash(b BoundingBox, precision int) string {
	if precision < 1 {
		precision = IndexPrecision
	}

	sw := Encode(GeoPoint{Lat: b.MinLat, Lng: b.MinLng}, precision)
	ne := Encode(GeoPoint{Lat: b.MaxLat, Lng: b.MaxLng}, precision)

	n := 0
	for n < len(sw) && sw[n] == ne[n] {
		n++
	}
	return sw[:n]
}
