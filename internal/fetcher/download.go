package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// etagSuffix names the sidecar file holding the last seen ETag for an
// extract, next to the extract itself.
const etagSuffix = ".etag"

// Downloader writes fetched extracts to disk with conditional-download
// bookkeeping.
type Downloader struct {
	fetcher Fetcher
}

// NewDownloader creates a Downloader on top of f.
func NewDownloader(f Fetcher) *Downloader {
	return &Downloader{fetcher: f}
}

// Get downloads src into dir, returning the local path and whether the file
// changed. When force is false and a previous download left an ETag sidecar,
// an unchanged upstream file is skipped. The write is atomic: the body lands
// in a temp file that is renamed over the target only after it is complete
// and its length matches the Content-Length the server declared.
func (d *Downloader) Get(ctx context.Context, src Source, dir string, force bool) (string, bool, error) {
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", src.URL))

	dest := filepath.Join(dir, src.Filename)
	etagPath := dest + etagSuffix

	etag := ""
	if !force {
		etag = readETag(etagPath, dest)
	}

	dl, err := d.fetcher.Fetch(ctx, src.URL, etag)
	if err != nil {
		return "", false, err
	}
	if dl == nil {
		log.Info("extract unchanged, skipping download", zap.String("file", dest))
		return dest, false, nil
	}
	defer dl.Body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(dir, src.Filename+".tmp-*")
	if err != nil {
		return "", false, eris.Wrap(err, "fetcher: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	n, err := io.Copy(tmp, dl.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", false, eris.Wrap(err, "fetcher: write temp file")
	}
	if dl.Length >= 0 && n != dl.Length {
		return "", false, eris.Errorf("fetcher: short download: got %d of %d bytes", n, dl.Length)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return "", false, eris.Wrap(err, "fetcher: rename into place")
	}

	if dl.ETag != "" {
		if err := os.WriteFile(etagPath, []byte(dl.ETag), 0o644); err != nil {
			log.Warn("failed to record etag", zap.Error(err))
		}
	} else {
		_ = os.Remove(etagPath)
	}

	log.Info("extract downloaded", zap.String("file", dest), zap.Int64("bytes", n))
	return dest, true, nil
}

// readETag returns the recorded ETag for dest, empty when there is none or
// the extract file itself is gone (a missing file must be re-downloaded no
// matter what the server thinks we have).
func readETag(etagPath, dest string) string {
	if _, err := os.Stat(dest); err != nil {
		return ""
	}
	data, err := os.ReadFile(etagPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
