package domain

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Classification is the outcome of classifying one message. Categories is
// never empty: a message with zero matches carries the uncategorized
// sentinel, so filtering UIs can count every message exactly once.
type Classification struct {
	Categories      []Category
	IsUncategorized bool
}

// Classifier tags messages with taxonomy entries using keyword rules.
// Classification runs once per message, not per geometry feature; all
// features inherit the message's categories.
type Classifier struct {
	keywords map[Category][]string
}

// NewClassifier builds a classifier from YAML rules mapping category slugs
// to keyword lists. Unknown category slugs are a configuration error.
func NewClassifier(rules []byte) (*Classifier, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(rules, &raw); err != nil {
		return nil, fmt.Errorf("parse classifier rules: %w", err)
	}

	keywords := make(map[Category][]string, len(raw))
	for slug, words := range raw {
		if !IsValidCategory(slug) || slug == string(CategoryUncategorized) {
			return nil, fmt.Errorf("classifier rules reference unknown category %q", slug)
		}
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				lowered = append(lowered, w)
			}
		}
		keywords[Category(slug)] = lowered
	}
	return &Classifier{keywords: keywords}, nil
}

// DefaultClassifier loads the embedded rule set. Panics on a malformed
// embedded file, which can only happen at build time.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(defaultRules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify matches title and body text against the keyword rules and merges
// in source-supplied category hints (crawlers own their parsing rules, so
// valid hints are trusted verbatim). Zero matches yields the uncategorized
// sentinel, never an empty list.
func (c *Classifier) Classify(title, body string, hints []Category) Classification {
	matched := make(map[Category]struct{})
	for _, hint := range hints {
		if hint != CategoryUncategorized && IsValidCategory(string(hint)) {
			matched[hint] = struct{}{}
		}
	}

	text := strings.ToLower(title + "\n" + body)
	for category, words := range c.keywords {
		for _, w := range words {
			if strings.Contains(text, w) {
				matched[category] = struct{}{}
				break
			}
		}
	}

	if len(matched) == 0 {
		return Classification{
			Categories:      []Category{CategoryUncategorized},
			IsUncategorized: true,
		}
	}

	categories := make([]Category, 0, len(matched))
	for cat := range matched {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return Classification{Categories: categories}
}
