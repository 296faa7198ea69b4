package geometry

import (
	"fmt"
	"math"
	"runtime"

	"github.com/airbusgeo/godal"
	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// Footprint is a polygonal geometry together with the CRS it is expressed
// in. All geometric predicates require both operands in the same CRS:
// reprojection happens explicitly through Reproject, never inside a
// predicate.
type Footprint struct {
	Geom geom.Geometry
	CRS  CRS
}

// BoxFootprint builds a rectangular footprint from [minx, miny, maxx, maxy]
// extents, the shape an AOI is delivered in.
func BoxFootprint(minx, miny, maxx, maxy float64, crs CRS) Footprint {
	return Footprint{
		Geom: geom.Polygon{{
			{minx, miny},
			{maxx, miny},
			{maxx, maxy},
			{minx, maxy},
			{minx, miny},
		}},
		CRS: crs,
	}
}

// Bounds returns the axis-aligned extents [minx, miny, maxx, maxy] of the
// footprint.
func Bounds(f Footprint) (minx, miny, maxx, maxy float64, err error) {
	minx, miny = math.Inf(1), math.Inf(1)
	maxx, maxy = math.Inf(-1), math.Inf(-1)
	n := 0
	err = walkPoints(f.Geom, func(x, y float64) {
		minx, miny = math.Min(minx, x), math.Min(miny, y)
		maxx, maxy = math.Max(maxx, x), math.Max(maxy, y)
		n++
	})
	if err == nil && n == 0 {
		err = fmt.Errorf("empty geometry")
	}
	return
}

// Envelope returns the axis-aligned bounding rectangle of the footprint, in
// the same CRS. Tile matching is done on the envelope of the AOI.
func Envelope(f Footprint) (Footprint, error) {
	minx, miny, maxx, maxy, err := Bounds(f)
	if err != nil {
		return Footprint{}, fmt.Errorf("Envelope.%w", err)
	}
	return BoxFootprint(minx, miny, maxx, maxy, f.CRS), nil
}

// Reproject returns a copy of the footprint expressed in dst. When the two
// reference systems are equal the input is returned unchanged, so that no
// floating-point drift is introduced by a redundant transform.
func Reproject(f Footprint, dst CRS) (Footprint, error) {
	if f.CRS.Equal(dst) {
		return f, nil
	}
	srcRef, err := f.CRS.SpatialRef()
	if err != nil {
		return Footprint{}, err
	}
	defer srcRef.Close()
	dstRef, err := dst.SpatialRef()
	if err != nil {
		return Footprint{}, err
	}
	defer dstRef.Close()

	trn, err := godal.NewTransform(srcRef, dstRef)
	if err != nil {
		return Footprint{}, CrsResolutionError{CRS: dst, Err: err}
	}
	defer trn.Close()

	g, err := transformGeometry(f.Geom, trn)
	if err != nil {
		return Footprint{}, fmt.Errorf("Reproject: %w", err)
	}
	return Footprint{Geom: g, CRS: dst}, nil
}

// Intersects returns whether the two footprints share any point. Both
// operands must be in the same CRS.
func Intersects(a, b Footprint) (bool, error) {
	ga, gb, err := geosPair(a, b)
	if err != nil {
		return false, fmt.Errorf("Intersects.%w", err)
	}
	ok, err := ga.Intersects(gb)
	runtime.KeepAlive(ga)
	runtime.KeepAlive(gb)
	if err != nil {
		return false, fmt.Errorf("Intersects: %w", err)
	}
	return ok, nil
}

// Within returns whether a lies strictly inside b. Both operands must be in
// the same CRS.
func Within(a, b Footprint) (bool, error) {
	ga, gb, err := geosPair(a, b)
	if err != nil {
		return false, fmt.Errorf("Within.%w", err)
	}
	ok, err := ga.Within(gb)
	runtime.KeepAlive(ga)
	runtime.KeepAlive(gb)
	if err != nil {
		return false, fmt.Errorf("Within: %w", err)
	}
	return ok, nil
}

// geosPair converts both footprints to GEOS geometries, enforcing the
// same-CRS precondition.
func geosPair(a, b Footprint) (*geos.Geometry, *geos.Geometry, error) {
	if !a.CRS.Equal(b.CRS) {
		return nil, nil, fmt.Errorf("CRS mismatch: %s vs %s", a.CRS, b.CRS)
	}
	ga, err := toGeos(a.Geom)
	if err != nil {
		return nil, nil, err
	}
	gb, err := toGeos(b.Geom)
	if err != nil {
		return nil, nil, err
	}
	return ga, gb, nil
}

func toGeos(g geom.Geometry) (*geos.Geometry, error) {
	wkt, err := geomwkt.EncodeString(g)
	if err != nil {
		return nil, fmt.Errorf("EncodeString: %w", err)
	}
	geo, err := geos.FromWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("FromWKT: %w", err)
	}
	return geo, nil
}

// transformGeometry applies the coordinate transform to every vertex.
func transformGeometry(g geom.Geometry, trn *godal.Transform) (geom.Geometry, error) {
	switch g := g.(type) {
	case geom.Polygon:
		out := make(geom.Polygon, len(g))
		for i, ring := range g {
			r, err := transformRing(ring, trn)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case geom.MultiPolygon:
		out := make(geom.MultiPolygon, len(g))
		for i, poly := range g {
			p, err := transformGeometry(geom.Polygon(poly), trn)
			if err != nil {
				return nil, err
			}
			out[i] = p.(geom.Polygon)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %T", g)
}

func transformRing(ring [][2]float64, trn *godal.Transform) ([][2]float64, error) {
	xs := make([]float64, len(ring))
	ys := make([]float64, len(ring))
	for i, pt := range ring {
		xs[i], ys[i] = pt[0], pt[1]
	}
	if err := trn.TransformEx(xs, ys, nil, nil); err != nil {
		return nil, fmt.Errorf("TransformEx: %w", err)
	}
	out := make([][2]float64, len(ring))
	for i := range out {
		out[i] = [2]float64{xs[i], ys[i]}
	}
	return out, nil
}

func walkPoints(g geom.Geometry, fn func(x, y float64)) error {
	switch g := g.(type) {
	case geom.Point:
		fn(g[0], g[1])
	case geom.Polygon:
		for _, ring := range g {
			for _, pt := range ring {
				fn(pt[0], pt[1])
			}
		}
	case geom.MultiPolygon:
		for _, poly := range g {
			if err := walkPoints(geom.Polygon(poly), fn); err != nil {
				return err
			}
		}
	case geom.Collection:
		for _, sub := range g.Geometries() {
			if err := walkPoints(sub, fn); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported geometry type %T", g)
	}
	return nil
}
