package common

// RasterInfo is the flattened description of one raster product: the pixel
// array plus the fields derived from its affine transform and CRS.
type RasterInfo struct {
	Data   []float64 `json:"-"`
	Width  int       `json:"width"`
	Height int       `json:"height"`

	// Affine transform, top-left origin. PixelSizeY is negative (north-up).
	OriginX    float64 `json:"x_min"`
	OriginY    float64 `json:"y_max"`
	PixelSizeX float64 `json:"x_size"`
	PixelSizeY float64 `json:"y_size"`

	EPSG   int    `json:"epsg"`
	CRSWKT string `json:"crs_wkt"`
	// NoData is nil when the raster has no nodata marker; a pointer keeps
	// a legitimate marker value of zero distinguishable from "none".
	NoData *float64 `json:"nodata,omitempty"`
}

// AcquisitionResult is the output of one pipeline run. Intensity is nil when
// the selected source has no point-cloud product or its preparation failed.
type AcquisitionResult struct {
	Status    string      `json:"status"`
	Source    SourceTag   `json:"source"`
	DTM       RasterInfo  `json:"dtm"`
	Intensity *RasterInfo `json:"intensity,omitempty"`
}
