package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/interface/source"
	"github.com/terraprep/anc-ingester/pipeline"
	"github.com/terraprep/anc-ingester/raster"
	"github.com/terraprep/anc-ingester/service"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
)

const ahn3CatalogURL = "https://opendata.arcgis.com/datasets/9039d4ec38ed444587c46f8689f0435e_0.geojson"

type config struct {
	ProjectID string
	Extent    [4]float64
	AOIFile   string
	EPSG      int

	WorkingDir string
	OutputDir  string
	CatalogDir string
	AHN3URL    string

	DKUser       string
	DKPassword   string
	USGSUser     string
	USGSPassword string
	SILocalRepo  string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.ProjectID, "project-id", "", "unique identifier of the run, used to name outputs and the working directory")
	extent := flag.String("extent", "", "AOI extent as minx,miny,maxx,maxy")
	flag.StringVar(&config.AOIFile, "aoi", "", "AOI polygon as a GeoJSON file (alternative to -extent)")
	flag.IntVar(&config.EPSG, "epsg", 0, "EPSG code of the AOI coordinates")

	flag.StringVar(&config.WorkingDir, "workdir", os.TempDir(), "working directory to store intermediate results")
	flag.StringVar(&config.OutputDir, "outdir", ".", "directory for the output products")
	flag.StringVar(&config.CatalogDir, "catalog-dir", "data", "directory with the bundled tile and coverage catalogs")
	flag.StringVar(&config.AHN3URL, "ahn3-url", ahn3CatalogURL, "remote AHN3 tile index (set empty to use the bundled copy only)")

	flag.StringVar(&config.DKUser, "dk-user", "", "kortforsyningen ftp account username (required for Denmark)")
	flag.StringVar(&config.DKPassword, "dk-password", "", "kortforsyningen ftp account password")
	flag.StringVar(&config.USGSUser, "usgs-user", "", "USGS ERS account username (required for SRTM)")
	flag.StringVar(&config.USGSPassword, "usgs-password", "", "USGS ERS account password")
	flag.StringVar(&config.SILocalRepo, "si-local-repo", "", "local repository of Slovenian DTM tiles (optional, replaces the ARSO download)")
	flag.Parse()

	if config.ProjectID == "" {
		return nil, fmt.Errorf("missing project-id config flag")
	}
	if *extent == "" && config.AOIFile == "" {
		return nil, fmt.Errorf("missing extent or aoi config flag")
	}
	if *extent != "" {
		parts := strings.Split(*extent, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("extent must be minx,miny,maxx,maxy")
		}
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("extent: %w", err)
			}
			config.Extent[i] = v
		}
	}
	if config.EPSG == 0 {
		return nil, fmt.Errorf("missing epsg config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	godal.RegisterAll()

	crs := geometry.CRS{EPSG: config.EPSG}
	var aoi geometry.Footprint
	if config.AOIFile != "" {
		data, err := os.ReadFile(config.AOIFile)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		g, err := service.UnmarshalGeometry(data)
		if err != nil {
			return fmt.Errorf("run.UnmarshalGeometry: %w", err)
		}
		aoi = geometry.Footprint{Geom: g, CRS: crs}
	} else {
		aoi = geometry.BoxFootprint(config.Extent[0], config.Extent[1], config.Extent[2], config.Extent[3], crs)
	}

	cfg := pipeline.Config{
		WorkDir:       config.WorkingDir,
		RegionCatalog: filepath.Join(config.CatalogDir, "regions.geojson"),
		Source: source.Config{
			CatalogDir:   config.CatalogDir,
			CatalogURLs:  map[string]string{"ahn3.geojson": config.AHN3URL},
			DKUser:       config.DKUser,
			DKPassword:   config.DKPassword,
			USGSUser:     config.USGSUser,
			USGSPassword: config.USGSPassword,
			SILocalRepo:  config.SILocalRepo,
		},
	}

	result, err := pipeline.Run(ctx, cfg, config.ProjectID, aoi)
	if err != nil {
		return fmt.Errorf("run.%w", err)
	}

	if err := os.MkdirAll(config.OutputDir, 0766); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	dtmPath := filepath.Join(config.OutputDir, config.ProjectID+"_dtm.tif")
	if err := writeProduct(result.DTM, dtmPath); err != nil {
		return fmt.Errorf("run.%w", err)
	}
	log.Logger(ctx).Info("DTM product written", zap.String("path", dtmPath))
	if result.Intensity != nil {
		intPath := filepath.Join(config.OutputDir, config.ProjectID+"_intensity.tif")
		if err := writeProduct(*result.Intensity, intPath); err != nil {
			return fmt.Errorf("run.%w", err)
		}
		log.Logger(ctx).Info("intensity product written", zap.String("path", intPath))
	}
	if err := service.ToJSON(result, config.OutputDir, config.ProjectID+"_anc.json"); err != nil {
		return fmt.Errorf("run.%w", err)
	}
	log.Logger(ctx).Info("finished", zap.String("status", result.Status), zap.String("source", string(result.Source)))
	return nil
}

func writeProduct(info common.RasterInfo, path string) error {
	tile := raster.Tile{
		Data:   info.Data,
		Width:  info.Width,
		Height: info.Height,
		Transform: raster.Transform{
			OriginX: info.OriginX,
			OriginY: info.OriginY,
			PixelX:  info.PixelSizeX,
			PixelY:  info.PixelSizeY,
		},
		CRS: geometry.CRS{EPSG: info.EPSG, WKT: info.CRSWKT},
	}
	if info.NoData != nil {
		tile.NoData = *info.NoData
		tile.HasNoData = true
	}
	return tile.Write(path)
}
