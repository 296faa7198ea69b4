package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/terraprep/anc-ingester/service"
)

func TestFetchAllSkipsMissingTiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tiles/a.tif":
			w.Write([]byte("data-a"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	urls := []string{srv.URL + "/tiles/a.tif", srv.URL + "/tiles/b.tif"}
	skipped, err := fetchAll(context.Background(), urls, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 1 || skipped[0] != "b.tif" {
		t.Errorf("skipped: got %v want [b.tif]", skipped)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.tif")); err != nil {
		t.Errorf("fetched tile missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.tif")); !os.IsNotExist(err) {
		t.Error("missing tile left a file behind")
	}
}

func TestFetchAllAbortsOnAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := fetchAll(context.Background(), []string{srv.URL + "/tiles/a.tif"}, t.TempDir())
	if err == nil {
		t.Fatal("expected bad credentials to abort the acquisition")
	}
	if !service.Fatal(err) {
		t.Errorf("bad credentials should be fatal, got %v", err)
	}
}
