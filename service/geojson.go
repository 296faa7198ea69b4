package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// UnmarshalGeometry reads an AOI from GeoJSON. Feature collections and
// geometry collections are merged into a single multipolygon.
func UnmarshalGeometry(data []byte) (_ geom.Geometry, err error) {
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return g.Geometry, err
	}
	switch geo := g.Geometry.(type) {
	case geojson.FeatureCollection:
		var mp geom.MultiPolygon
		for _, f := range geo.Features {
			if err := mergeMultiPolygons(f.Geometry.Geometry, &mp); err != nil {
				return nil, err
			}
		}
		return mp, nil
	case geojson.Feature:
		return geo.Geometry.Geometry, nil
	default:
		return g.Geometry, nil
	}
}

func mergeMultiPolygons(g geom.Geometry, mp *geom.MultiPolygon) error {
	switch g := g.(type) {
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, g := range g.Geometries() {
			if err := mergeMultiPolygons(g, mp); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToJSON writes v as JSON into dir/filename. A no-op when dir is empty.
func ToJSON(v interface{}, dir, filename string) error {
	if dir != "" {
		vb, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("toJSON.Marshal: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, filename), vb, 0644); err != nil {
			return fmt.Errorf("toJSON.WriteFile: %w", err)
		}
	}
	return nil
}
