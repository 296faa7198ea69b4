// Package pointcloud rasterizes LAZ point clouds into intensity tiles by
// shelling out to LAStools. The binaries (lasindex, blast2dem) must be on
// PATH.
package pointcloud

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/service/log"
)

// workerCores leaves one core for the rest of the process.
func workerCores() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// Index builds spatial index files (.lax) next to every .laz of the
// directory, so that the rasterizer can seek instead of scanning whole
// archives.
func Index(ctx context.Context, dir string) error {
	cmd := exec.Command("lasindex",
		"-i", filepath.Join(dir, "*.laz"),
		"-cores", strconv.Itoa(workerCores()))
	if err := log.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("Index: %w", err)
	}
	return nil
}

// Intensity rasterizes the point clouds of the directory into intensity
// GeoTIFF tiles, clipped to the bounding rectangle of the AOI reprojected
// into the point cloud CRS. Ground and water classes only (2 and 8), half
// metre pixels, with a 20 m buffer around each tile so that adjacent tiles
// overlap and triangulation artefacts at the edges fall outside the tile.
// Triangles longer than 1000 m are dropped. The rasterized tiles come out
// without a CRS. Returns the output directory.
func Intensity(ctx context.Context, dir string, aoi geometry.Footprint, epsg int) (string, error) {
	aoiPr, err := geometry.Reproject(aoi, geometry.CRS{EPSG: epsg})
	if err != nil {
		return "", fmt.Errorf("Intensity.%w", err)
	}
	minx, miny, maxx, maxy, err := geometry.Bounds(aoiPr)
	if err != nil {
		return "", fmt.Errorf("Intensity.%w", err)
	}

	outDir := dir + "_intensity"
	if err := os.MkdirAll(outDir, 0766); err != nil {
		return "", fmt.Errorf("Intensity: %w", err)
	}

	fl := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	cmd := exec.Command("blast2dem",
		"-i", filepath.Join(dir, "*.laz"),
		"-kill", "1000",
		"-buffered", "20",
		"-step", "0.5",
		"-otif",
		"-odir", outDir,
		"-odix", "_intensity",
		"-intensity",
		"-keep_class", "2", "8",
		"-keep_xy", fl(minx), fl(miny), fl(maxx), fl(maxy),
		"-cores", strconv.Itoa(workerCores()))
	if err := log.Exec(ctx, cmd); err != nil {
		return "", fmt.Errorf("Intensity: %w", err)
	}
	return outDir, nil
}
