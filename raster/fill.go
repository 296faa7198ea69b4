package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/terraprep/anc-ingester/service/log"
)

const (
	fillMaxSearchDistance   = 500
	fillSmoothingIterations = 1
)

// FillNoData interpolates the nodata pixels of every .tif in dir (inverse
// distance weighting with a bounded search radius) and writes the results to
// a sibling directory. Pixels the interpolation cannot reach are set to
// zero, never left undefined. Returns the output directory.
func FillNoData(ctx context.Context, dir string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tif"))
	if err != nil {
		return "", fmt.Errorf("FillNoData: %w", err)
	}
	sort.Strings(paths)

	outDir := dir + "_fill"
	if err := os.MkdirAll(outDir, 0766); err != nil {
		return "", fmt.Errorf("FillNoData: %w", err)
	}

	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".tif") + "_fill.tif"
		if err := fillFile(ctx, p, filepath.Join(outDir, name)); err != nil {
			return "", fmt.Errorf("FillNoData.%w", err)
		}
	}
	return outDir, nil
}

func fillFile(ctx context.Context, src, dst string) error {
	tile, err := Open(src)
	if err != nil {
		return err
	}
	if err := tile.Write(dst); err != nil {
		return err
	}

	hasNoData, err := NoDataCheck(src)
	if err != nil {
		return err
	}
	if !hasNoData {
		return nil
	}
	log.Logger(ctx).Sugar().Debugf("%s contains nodata values, interpolating", filepath.Base(src))

	ds, err := godal.Open(dst, godal.Update())
	if err != nil {
		return fmt.Errorf("fillFile[%s]: %w", dst, err)
	}
	defer ds.Close()
	band := ds.Bands()[0]
	if err := band.FillNoData(godal.MaxDistance(fillMaxSearchDistance), godal.SmoothingIterations(fillSmoothingIterations)); err != nil {
		return fmt.Errorf("fillFile[%s].FillNoData: %w", dst, err)
	}

	// Whatever the interpolation could not reach becomes zero.
	data := make([]float64, tile.Width*tile.Height)
	if err := band.Read(0, 0, data, tile.Width, tile.Height); err != nil {
		return fmt.Errorf("fillFile[%s].Read: %w", dst, err)
	}
	remaining := false
	for i, v := range data {
		if v == tile.NoData {
			data[i] = 0
			remaining = true
		}
	}
	if remaining {
		log.Logger(ctx).Sugar().Debugf("%s still contains nodata after interpolation, setting to zero", filepath.Base(src))
		if err := band.Write(0, 0, data, tile.Width, tile.Height); err != nil {
			return fmt.Errorf("fillFile[%s].Write: %w", dst, err)
		}
	}
	return nil
}
