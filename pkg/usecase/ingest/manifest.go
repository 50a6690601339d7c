package ingest

import (
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
	"gopkg.in/yaml.v3"
)

// Manifest lists documents to add in one batch
//
//	documents:
//	  - path: laws/health.pdf
//	    effective_date: 2024-01-01
//	  - path: gs://bucket/drug.pdf
type Manifest struct {
	Documents []Document `yaml:"documents"`
}

type Document struct {
	Path          string `yaml:"path"`
	EffectiveDate string `yaml:"effective_date,omitempty"`
}

// LoadManifest reads a YAML manifest. Relative local paths are resolved against the
// directory of the manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read manifest", goerr.V("path", path))
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to parse manifest", goerr.V("path", path))
	}

	dir := filepath.Dir(path)
	for i := range m.Documents {
		doc := &m.Documents[i]
		if doc.Path == "" {
			return nil, goerr.New("document path is empty", goerr.V("manifest", path), goerr.V("index", i))
		}
		if !adapter.IsGCSURL(doc.Path) && !filepath.IsAbs(doc.Path) {
			doc.Path = filepath.Join(dir, doc.Path)
		}
	}

	return &m, nil
}
