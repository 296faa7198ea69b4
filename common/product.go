package common

import (
	"fmt"
	"strings"
)

// ProductType is the kind of ancillary product requested from a data source.
type ProductType string

const (
	// ProductDTM is the digital terrain model raster product.
	ProductDTM ProductType = "DTM"
	// ProductPointCloud is the lidar point-cloud product (LAZ tiles), from
	// which the intensity raster is derived.
	ProductPointCloud ProductType = "LAZ"
)

// ParseProductType parses the user input into a ProductType
func ParseProductType(s string) (ProductType, error) {
	switch strings.ToUpper(s) {
	case "DTM", "DEM":
		return ProductDTM, nil
	case "LAZ", "POINTCLOUD", "POINT-CLOUD":
		return ProductPointCloud, nil
	}
	return "", fmt.Errorf("unknown product type: %s", s)
}

// SourceTag identifies one of the backing open-data sources.
// Adding a region means adding a tag and a source implementation.
type SourceTag string

const (
	SourceNetherlands SourceTag = "NL"
	SourceDenmark     SourceTag = "DK"
	SourceSlovenia    SourceTag = "SI"
	SourceGermanyNRW  SourceTag = "DE_NRW"
	SourceMexico      SourceTag = "MX"
	// SourceSRTM is the global elevation fallback, used whenever no regional
	// source fully contains the AOI.
	SourceSRTM SourceTag = "SRTM"
)

// ParseSourceTag maps a coverage-catalog abbreviation onto a SourceTag.
func ParseSourceTag(s string) (SourceTag, error) {
	switch SourceTag(strings.ToUpper(s)) {
	case SourceNetherlands, SourceDenmark, SourceSlovenia, SourceGermanyNRW, SourceMexico, SourceSRTM:
		return SourceTag(strings.ToUpper(s)), nil
	}
	return "", fmt.Errorf("unknown source tag: %s", s)
}
