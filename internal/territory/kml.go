package territory

import (
	"fmt"
	"image/color"
	"io"

	"github.com/twpayne/go-kml/v3"

	"github.com/onnwee/turf/internal/geo"
)

// WriteKML writes the territories and, if non-empty, the walked path as a KML
// document suitable for viewing in a map tool. Territories owned by ownerID
// are styled as owned; all others are styled as foreign.
func WriteKML(w io.Writer, name, ownerID string, territories []*Territory, path []geo.GeoPoint) error {
	children := []kml.Element{
		kml.Name(name),
		kml.SharedStyle("owned",
			kml.LineStyle(kml.Color(color.RGBA{R: 0x1b, G: 0x9e, B: 0x77, A: 0xff}), kml.Width(2)),
			kml.PolyStyle(kml.Color(color.RGBA{R: 0x1b, G: 0x9e, B: 0x77, A: 0x66})),
		),
		kml.SharedStyle("foreign",
			kml.LineStyle(kml.Color(color.RGBA{R: 0xd9, G: 0x5f, B: 0x02, A: 0xff}), kml.Width(2)),
			kml.PolyStyle(kml.Color(color.RGBA{R: 0xd9, G: 0x5f, B: 0x02, A: 0x66})),
		),
		kml.SharedStyle("path",
			kml.LineStyle(kml.Color(color.RGBA{R: 0x75, G: 0x70, B: 0xb3, A: 0xff}), kml.Width(3)),
		),
	}

	for _, t := range territories {
		if len(t.Polygon) < 3 {
			continue
		}
		style := "#foreign"
		if t.OwnerID == ownerID {
			style = "#owned"
		}
		children = append(children, kml.Placemark(
			kml.Name(t.ID),
			kml.Description(fmt.Sprintf("owner %s, %.0f m²", t.OwnerID, t.Area)),
			kml.StyleURL(style),
			kml.Polygon(
				kml.OuterBoundaryIs(
					kml.LinearRing(kml.Coordinates(ringCoordinates(t.Polygon)...)),
				),
			),
		))
	}

	if len(path) > 1 {
		children = append(children, kml.Placemark(
			kml.Name("walked path"),
			kml.StyleURL("#path"),
			kml.LineString(kml.Coordinates(lineCoordinates(path)...)),
		))
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func lineCoordinates(points []geo.GeoPoint) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Lng, Lat: p.Lat}
	}
	return coords
}

// ringCoordinates closes the ring as KML requires.
func ringCoordinates(points []geo.GeoPoint) []kml.Coordinate {
	coords := lineCoordinates(points)
	if coords[0] != coords[len(coords)-1] {
		coords = append(coords, coords[0])
	}
	return coords
}
