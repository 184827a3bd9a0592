package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vbuch/oboapp-sub005/internal/domain"
)

// FileCrawler serves SourceDocuments from a JSON file: a development and
// testing stand-in for a live scraper, and the way pre-extracted feeds
// (e.g. output of an external extraction service) enter the pipeline.
type FileCrawler struct {
	name string
	path string
}

// NewFileCrawler returns a crawler reading documents from path.
func NewFileCrawler(name, path string) (*FileCrawler, error) {
	if name == "" {
		return nil, fmt.Errorf("file crawler requires a name")
	}
	if path == "" {
		return nil, fmt.Errorf("file crawler %q requires a path", name)
	}
	return &FileCrawler{name: name, path: path}, nil
}

func (f *FileCrawler) Name() string { return f.name }

// Crawl reads and decodes the backing file. The crawler's name overrides
// whatever sourceType the file carries, and crawledAt is stamped fresh.
func (f *FileCrawler) Crawl(ctx context.Context) ([]domain.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read source file for %s: %w", f.name, err)
	}

	var docs []domain.SourceDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode source file for %s: %w", f.name, err)
	}

	now := domain.Now()
	for i := range docs {
		docs[i].SourceType = f.name
		if docs[i].CrawledAt.IsZero() {
			docs[i].CrawledAt = now
		}
	}
	return docs, nil
}
