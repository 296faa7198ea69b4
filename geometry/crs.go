package geometry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
)

// CRS identifies a coordinate reference system either by EPSG code or by a
// well-known-text definition. The zero value means "no CRS".
type CRS struct {
	EPSG int
	WKT  string
}

// WGS84 is the CRS of the region-coverage catalog and of the SRTM tiles.
var WGS84 = CRS{EPSG: 4326}

// CrsResolutionError reports a reference system that cannot be parsed.
// It is non-recoverable and aborts the run.
type CrsResolutionError struct {
	CRS CRS
	Err error
}

func (e CrsResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve CRS (epsg:%d wkt:%q): %v", e.CRS.EPSG, e.CRS.WKT, e.Err)
}

func (e CrsResolutionError) Unwrap() error { return e.Err }

// Defined returns whether the CRS carries any definition.
func (c CRS) Defined() bool {
	return c.EPSG != 0 || c.WKT != ""
}

// Equal compares two reference systems. Matching non-zero EPSG codes are
// equal without parsing; anything else requires identical WKT.
func (c CRS) Equal(o CRS) bool {
	if c.EPSG != 0 && o.EPSG != 0 {
		return c.EPSG == o.EPSG
	}
	return c.WKT == o.WKT && c.EPSG == o.EPSG
}

func (c CRS) String() string {
	if c.EPSG != 0 {
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	}
	if c.WKT != "" {
		return "WKT"
	}
	return "undefined"
}

// SpatialRef resolves the CRS into a godal spatial reference. The caller owns
// the returned reference and must Close it.
func (c CRS) SpatialRef() (*godal.SpatialRef, error) {
	switch {
	case c.EPSG != 0:
		sr, err := godal.NewSpatialRefFromEPSG(c.EPSG)
		if err != nil {
			return nil, CrsResolutionError{CRS: c, Err: err}
		}
		return sr, nil
	case c.WKT != "":
		sr, err := godal.NewSpatialRefFromWKT(c.WKT)
		if err != nil {
			return nil, CrsResolutionError{CRS: c, Err: err}
		}
		return sr, nil
	}
	return nil, CrsResolutionError{CRS: c, Err: fmt.Errorf("empty definition")}
}

// EPSGFromWKT extracts the EPSG code of a WKT definition, 0 when none is
// declared. GDAL writes the authority of the whole reference system as the
// last AUTHORITY node; the nested datum and unit authorities come before it.
func EPSGFromWKT(wkt string) int {
	const marker = `AUTHORITY["EPSG","`
	i := strings.LastIndex(wkt, marker)
	if i < 0 {
		return 0
	}
	rest := wkt[i+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return 0
	}
	code, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return code
}

// ToWKT returns the well-known-text form of the CRS.
func (c CRS) ToWKT() (string, error) {
	if c.WKT != "" {
		return c.WKT, nil
	}
	sr, err := c.SpatialRef()
	if err != nil {
		return "", err
	}
	defer sr.Close()
	wkt, err := sr.WKT()
	if err != nil {
		return "", CrsResolutionError{CRS: c, Err: err}
	}
	return wkt, nil
}
