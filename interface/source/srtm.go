package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/service"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// SRTM 1 arc-second global DTM, served by USGS EarthExplorer. The global
// fallback when no regional archive covers the AOI. Downloads need an ERS
// session: scrape the csrf token from the login page, post the credentials,
// then fetch each tile through the session cookie.
const (
	srtmCatalog = "srtm30m_bounding_boxes.geojson"

	ersURL      = "https://ers.cr.usgs.gov"
	ersLoginURL = "https://ers.cr.usgs.gov/login/"
	srtmURLPref = "https://earthexplorer.usgs.gov/download/8360/"
	srtmURLSuff = "/GEOTIFF/EE"
)

type srtmSource struct {
	cfg Config
}

func (s *srtmSource) Tag() common.SourceTag { return common.SourceSRTM }

func (s *srtmSource) Supports(p common.ProductType) bool {
	return p == common.ProductDTM
}

func (s *srtmSource) Profile() Profile {
	return Profile{FillNoData: false}
}

func (s *srtmSource) MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error) {
	if !s.Supports(product) {
		return nil, UnsupportedDataTypeError{Source: s.Tag(), Product: product}
	}
	cat, err := catalog.Load(ctx, s.cfg.catalogURL(srtmCatalog),
		filepath.Join(s.cfg.CatalogDir, srtmCatalog), geometry.WGS84)
	if err != nil {
		return nil, fmt.Errorf("srtm.MatchTiles.%w", err)
	}
	tiles, err := catalog.Match(aoi, cat)
	if err != nil {
		return nil, fmt.Errorf("srtm.MatchTiles.%w", err)
	}
	return tiles, nil
}

func (s *srtmSource) Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error) {
	outDir := filepath.Join(dir, "srtm")
	if err := os.MkdirAll(outDir, 0766); err != nil {
		return "", nil, fmt.Errorf("srtm.Acquire: %w", err)
	}

	client, err := s.login(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("srtm.Acquire.%w", err)
	}

	var skipped []string
	for i, t := range tiles {
		name, err := t.Attr("tile_name")
		if err != nil {
			return "", nil, fmt.Errorf("srtm.Acquire.%w", err)
		}
		item := "SRTM1" + name + "V3"
		log.Logger(ctx).Sugar().Infof("downloading %s (%d of %d)", item, i+1, len(tiles))
		dst := filepath.Join(outDir, item+".tif")
		if err := sessionFetch(ctx, client, srtmURLPref+item+srtmURLSuff, dst); err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			log.Logger(ctx).Warn("tile skipped", zap.String("tile", item), zap.Error(err))
			os.Remove(dst)
			skipped = append(skipped, item)
		}
	}
	return outDir, skipped, nil
}

// login opens an ERS session: the login form is protected by a csrf token
// that has to be scraped from the page first.
func (s *srtmSource) login(ctx context.Context) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	client := &http.Client{Jar: jar}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ersURL, nil)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("login.Get: %w", err))
	}
	defer resp.Body.Close()
	token, err := csrfToken(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("login.%w", err)
	}

	form := url.Values{
		"username": {s.cfg.USGSUser},
		"password": {s.cfg.USGSPassword},
		"csrf":     {token},
	}
	preq, err := http.NewRequestWithContext(ctx, http.MethodPost, ersLoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	preq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	presp, err := client.Do(preq)
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("login.Post: %w", err))
	}
	defer presp.Body.Close()
	io.Copy(io.Discard, presp.Body)
	return client, nil
}

// csrfToken extracts the value of <input name="csrf"> from a login page.
func csrfToken(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("csrfToken: %w", err)
	}
	token := findInputValue(doc, "csrf")
	if token == "" {
		return "", fmt.Errorf("csrfToken: csrf input not found")
	}
	return token, nil
}

func findInputValue(n *html.Node, name string) string {
	if n.Type == html.ElementNode && n.Data == "input" {
		var nm, val string
		for _, a := range n.Attr {
			switch a.Key {
			case "name":
				nm = a.Val
			case "value":
				val = a.Val
			}
		}
		if nm == name {
			return val
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := findInputValue(c, name); v != "" {
			return v
		}
	}
	return ""
}

func sessionFetch(ctx context.Context, client *http.Client, fetchURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return fmt.Errorf("sessionFetch: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("sessionFetch[%s]: %w", fetchURL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrTileNotFound{Name: filepath.Base(dst)}
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("sessionFetch: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("sessionFetch[%s]: %w", fetchURL, err)
	}
	return nil
}
