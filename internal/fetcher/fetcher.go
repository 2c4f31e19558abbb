// Package fetcher downloads published extract files over HTTPS. A YAML
// manifest names the datasets and where they live; downloads are
// ETag-conditional and written atomically so a half-finished transfer never
// replaces a good file.
package fetcher

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Download is one retrieved extract body with its caching metadata.
type Download struct {
	Body   io.ReadCloser
	ETag   string
	Length int64 // -1 when the server sent no Content-Length
}

// Fetcher defines the interface for downloading remote extracts.
type Fetcher interface {
	// Fetch retrieves the URL. A non-empty etag is sent as If-None-Match;
	// a nil Download with a nil error means the content is unchanged.
	Fetch(ctx context.Context, url, etag string) (*Download, error)
}

// Source names one published extract in the manifest.
type Source struct {
	URL      string `yaml:"url"`
	Filename string `yaml:"filename"`
}

// Manifest maps dataset names to their published locations.
type Manifest struct {
	Sources map[string]Source `yaml:"sources"`
}

// LoadManifest reads the source manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse manifest %s", path)
	}
	if len(m.Sources) == 0 {
		return nil, eris.Errorf("fetcher: manifest %s names no sources", path)
	}

	for name, src := range m.Sources {
		if src.URL == "" {
			return nil, eris.Errorf("fetcher: source %s has no url", name)
		}
		if src.Filename == "" {
			return nil, eris.Errorf("fetcher: source %s has no filename", name)
		}
	}
	return &m, nil
}

// Source returns the named source from the manifest.
func (m *Manifest) Source(name string) (Source, error) {
	src, ok := m.Sources[name]
	if !ok {
		return Source{}, eris.Errorf("fetcher: unknown dataset %q in manifest", name)
	}
	return src, nil
}
