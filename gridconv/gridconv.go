// Package gridconv converts ASCII elevation grids (XYZ and ASC point lists)
// into GeoTIFF tiles. Agencies publish these grids with varying delimiters,
// point orderings and coordinate quirks; the converter normalizes all of them
// into north-up rasters.
package gridconv

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/raster"
	"github.com/terraprep/anc-ingester/service/log"
)

const gridNoData = -9999

// Options control how a grid file is interpreted.
type Options struct {
	// Delimiter separates the three columns. Zero means any whitespace.
	Delimiter rune
	// EPSG is stamped on the output raster.
	EPSG int
	// FalseEasting is subtracted from every x coordinate. The NRW grids
	// prefix the easting with the UTM zone number (32), shifting it by
	// 32000000 m.
	FalseEasting float64
}

type point struct {
	x, y, z float64
}

// ConvertDir converts every file of the directory matching the pattern and
// returns the number of converted files. The source files are removed after
// conversion.
func ConvertDir(ctx context.Context, dir, pattern string, opts Options) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("ConvertDir: %w", err)
	}
	sort.Strings(paths)
	for i, p := range paths {
		log.Logger(ctx).Sugar().Debugf("converting %s (%d of %d)", filepath.Base(p), i+1, len(paths))
		if _, err := ConvertFile(p, opts); err != nil {
			return 0, fmt.Errorf("ConvertDir.%w", err)
		}
		if err := os.Remove(p); err != nil {
			return 0, fmt.Errorf("ConvertDir: %w", err)
		}
	}
	return len(paths), nil
}

// ConvertFile converts one grid file into a GeoTIFF next to it, replacing the
// extension with .tif, and returns the output path.
func ConvertFile(path string, opts Options) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("ConvertFile: %w", err)
	}
	defer f.Close()

	pts, err := parsePoints(f, opts.Delimiter)
	if err != nil {
		return "", fmt.Errorf("ConvertFile[%s]: %w", path, err)
	}
	tile, err := gridTile(pts, opts)
	if err != nil {
		return "", fmt.Errorf("ConvertFile[%s]: %w", path, err)
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".tif"
	if err := tile.Write(out); err != nil {
		return "", fmt.Errorf("ConvertFile.%w", err)
	}
	return out, nil
}

func parsePoints(f *os.File, delim rune) ([]point, error) {
	split := func(line string) []string { return strings.Fields(line) }
	if delim != 0 {
		split = func(line string) []string { return strings.Split(line, string(delim)) }
	}

	var pts []point
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := split(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 columns, got %d", len(pts)+1, len(fields))
		}
		var p point
		var err error
		if p.x, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64); err != nil {
			return nil, err
		}
		if p.y, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err != nil {
			return nil, err
		}
		if p.z, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("empty grid file")
	}
	return pts, nil
}

// gridTile lays the points onto a regular grid. The point ordering of the
// source file does not matter: each point is placed by its coordinates, with
// the pixel size taken from the smallest positive spacing along each axis.
func gridTile(pts []point, opts Options) (*raster.Tile, error) {
	if opts.FalseEasting != 0 {
		for i := range pts {
			pts[i].x -= opts.FalseEasting
		}
	}

	xs := axisValues(pts, func(p point) float64 { return p.x })
	ys := axisValues(pts, func(p point) float64 { return p.y })
	px, err := axisStep(xs)
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	py, err := axisStep(ys)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	width := int(math.Round((xs[len(xs)-1]-xs[0])/px)) + 1
	height := int(math.Round((ys[len(ys)-1]-ys[0])/py)) + 1

	tile := raster.Tile{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
		// The coordinates mark the lower-left corner of each cell.
		Transform: raster.Transform{
			OriginX: xs[0],
			OriginY: ys[len(ys)-1] + py,
			PixelX:  px,
			PixelY:  -py,
		},
		CRS:       geometry.CRS{EPSG: opts.EPSG},
		NoData:    gridNoData,
		HasNoData: true,
	}
	for i := range tile.Data {
		tile.Data[i] = gridNoData
	}

	for _, p := range pts {
		col := int(math.Round((p.x - xs[0]) / px))
		row := int(math.Round((ys[len(ys)-1] - p.y) / py))
		if col < 0 || col >= width || row < 0 || row >= height {
			return nil, fmt.Errorf("point (%v,%v) falls outside the inferred grid", p.x, p.y)
		}
		tile.Data[row*width+col] = p.z
	}
	return &tile, nil
}

func axisValues(pts []point, get func(point) float64) []float64 {
	seen := make(map[float64]struct{}, len(pts))
	var vals []float64
	for _, p := range pts {
		v := get(p)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			vals = append(vals, v)
		}
	}
	sort.Float64s(vals)
	return vals
}

func axisStep(vals []float64) (float64, error) {
	if len(vals) < 2 {
		return 0, fmt.Errorf("degenerate grid: single coordinate value")
	}
	step := vals[1] - vals[0]
	for i := 2; i < len(vals); i++ {
		if d := vals[i] - vals[i-1]; d < step {
			step = d
		}
	}
	if step <= 0 {
		return 0, fmt.Errorf("degenerate grid: zero spacing")
	}
	return step, nil
}
