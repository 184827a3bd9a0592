// Package crawler defines the crawler capability interface and the explicit
// registry the orchestrator discovers sources from. Crawlers register at
// startup under a stable string identifier; there is no runtime plugin
// discovery.
package crawler

import (
	"context"
	"fmt"
	"sort"

	"github.com/vbuch/oboapp-sub005/internal/domain"
)

// Crawler produces SourceDocuments for one upstream source. Implementations
// are expected to be idempotent at the document level: re-crawling may
// re-emit the same document, dedup happens downstream in the ingestor.
type Crawler interface {
	// Name is the stable source identifier, stamped into every document's
	// sourceType.
	Name() string

	// Crawl fetches and parses the source into raw documents.
	Crawl(ctx context.Context) ([]domain.SourceDocument, error)
}

// Registry maps source identifiers to crawler implementations.
type Registry struct {
	crawlers map[string]Crawler
}

// NewRegistry builds a registry from the given crawlers. Duplicate names are
// a wiring bug and fail construction.
func NewRegistry(crawlers ...Crawler) (*Registry, error) {
	r := &Registry{crawlers: make(map[string]Crawler, len(crawlers))}
	for _, c := range crawlers {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a crawler under its name.
func (r *Registry) Register(c Crawler) error {
	name := c.Name()
	if name == "" {
		return fmt.Errorf("crawler has empty name")
	}
	if _, exists := r.crawlers[name]; exists {
		return fmt.Errorf("crawler %q registered twice", name)
	}
	r.crawlers[name] = c
	return nil
}

// Get returns the crawler registered under name.
func (r *Registry) Get(name string) (Crawler, error) {
	c, ok := r.crawlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q, registered: %v", name, r.Names())
	}
	return c, nil
}

// Resolve returns the crawlers for the named subset, or every registered
// crawler when names is empty. Order is by name, so runs are reproducible.
func (r *Registry) Resolve(names []string) ([]Crawler, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]Crawler, 0, len(names))
	for _, name := range names {
		c, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Names lists registered source identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.crawlers))
	for name := range r.crawlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
