package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
)

// ErrUnsupportedFormat is returned for documents that are neither PDF nor plain text
var ErrUnsupportedFormat = goerr.New("unsupported document format")

// Page is the text of one page of a document. Number is zero-based.
type Page struct {
	Number int
	Text   string
}

// LoadPDF extracts the plain text of every page. Pages without a content stream yield empty text.
func LoadPDF(r io.ReaderAt, size int64) ([]Page, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open pdf")
	}

	pages := make([]Page, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to extract page text", goerr.V("page", i))
		}
		pages = append(pages, Page{Number: i - 1, Text: text})
	}
	return pages, nil
}

func isText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func isPDF(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

// loadPages reads a local file or a gs:// object
func (x *Ingester) loadPages(ctx context.Context, path string) ([]Page, error) {
	if !isPDF(path) && !isText(path) {
		return nil, goerr.Wrap(ErrUnsupportedFormat, "unsupported document format", goerr.V("path", path))
	}

	var data []byte
	if adapter.IsGCSURL(path) {
		if x.storage == nil {
			return nil, goerr.New("storage is not configured for gs:// documents", goerr.V("path", path))
		}
		rc, err := x.storage.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		data, err = io.ReadAll(rc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read document", goerr.V("path", path))
		}
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read document", goerr.V("path", path))
		}
	}

	if isText(path) {
		return []Page{{Number: 0, Text: string(data)}}, nil
	}

	pages, err := LoadPDF(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load pdf", goerr.V("path", path))
	}
	return pages, nil
}
