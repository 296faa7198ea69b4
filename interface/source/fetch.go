package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/mholt/archiver"
	"github.com/terraprep/anc-ingester/service"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTileNotFound is returned when an archive file is absent from the
// server. Expected for synthesized neighbour names; callers skip the tile.
type ErrTileNotFound struct {
	Name string
}

func (e ErrTileNotFound) Error() string {
	return fmt.Sprintf("tile not found or unavailable: %s", e.Name)
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

// fetchFile downloads url into dst, logging progress every 5%.
func fetchFile(ctx context.Context, url, dst string) error {
	req, err := grab.NewRequest(dst, url)
	if err != nil {
		return fmt.Errorf("fetchFile.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)

	resp := grab.NewClient().Do(req)
	displayProgress(ctx, filepath.Base(dst), resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("fetchFile[%s]: %w", url, err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 401:
			// Bad credentials fail every tile; not worth skipping.
			return service.MakeFatal(err)
		case 403, 404, 410:
			return ErrTileNotFound{Name: filepath.Base(url)}
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		default:
			return err
		}
	}
	return nil
}

// fetchAll downloads the urls into dir in parallel, bounded by the CPU
// count. Missing and failed tiles are warnings: the merge step decides
// whether what remains is enough. Returns the names of the skipped tiles,
// in url order. Fatal per-tile errors abort the whole acquisition.
func fetchAll(ctx context.Context, urls []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0766); err != nil {
		return nil, fmt.Errorf("fetchAll: %w", err)
	}
	missed := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			dst := filepath.Join(dir, filepath.Base(url))
			if err := fetchFile(gctx, url, dst); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if service.Fatal(err) {
					return err
				}
				log.Logger(gctx).Warn("tile skipped", zap.String("url", url), zap.Error(err))
				os.Remove(dst)
				missed[i] = filepath.Base(url)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetchAll: %w", err)
	}
	var skipped []string
	for _, name := range missed {
		if name != "" {
			skipped = append(skipped, name)
		}
	}
	log.Logger(ctx).Sugar().Infof("fetched %d of %d tiles", len(urls)-len(skipped), len(urls))
	return skipped, nil
}

// unarchive extracts an archive into localDir, flattening the content of
// the archive's top level. All errors are temporary.
func unarchive(localZip, localDir string) error {
	tmpdir, err := os.MkdirTemp(localDir, filepath.Base(localZip))
	if err != nil {
		return service.MakeTemporary(err)
	}
	defer os.RemoveAll(tmpdir)
	if err := archiver.Unarchive(localZip, tmpdir); err != nil {
		return service.MakeTemporary(err)
	}
	files, err := os.ReadDir(tmpdir)
	if err != nil {
		return service.MakeTemporary(err)
	}
	if len(files) == 0 {
		return service.MakeTemporary(fmt.Errorf("empty archive"))
	}
	for _, f := range files {
		os.Rename(filepath.Join(tmpdir, f.Name()), filepath.Join(localDir, f.Name()))
	}
	return nil
}

// unzipAll extracts every archive of the directory matching the pattern and
// deletes the archives.
func unzipAll(ctx context.Context, dir, pattern string) error {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("unzipAll: %w", err)
	}
	for _, p := range paths {
		log.Logger(ctx).Sugar().Debugf("extracting %s", filepath.Base(p))
		if err := unarchive(p, dir); err != nil {
			return fmt.Errorf("unzipAll[%s]: %w", p, err)
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("unzipAll: %w", err)
		}
	}
	return nil
}

// gunzipAll decompresses every .gz of the directory in place and deletes
// the compressed files.
func gunzipAll(ctx context.Context, dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.gz"))
	if err != nil {
		return fmt.Errorf("gunzipAll: %w", err)
	}
	for _, p := range paths {
		log.Logger(ctx).Sugar().Debugf("decompressing %s", filepath.Base(p))
		if err := archiver.DecompressFile(p, p[:len(p)-3]); err != nil {
			return service.MakeTemporary(fmt.Errorf("gunzipAll[%s]: %w", p, err))
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("gunzipAll: %w", err)
		}
	}
	return nil
}
