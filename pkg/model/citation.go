package model

import (
	"fmt"
	"slices"
	"strings"
)

// CitationMap maps a source path to the one-based pages cited by the latest retrieval.
// Pages are unique and sorted ascending within each source.
type CitationMap map[string][]int

// NewCitationMap builds a CitationMap from retrieved passages. Passages without a source are
// not citable and are ignored.
func NewCitationMap(passages []*Passage) CitationMap {
	cm := CitationMap{}
	for _, p := range passages {
		if p == nil || p.Metadata.Source == "" {
			continue
		}
		cm[p.Metadata.Source] = append(cm[p.Metadata.Source], p.Metadata.Page+1)
	}

	for src, pages := range cm {
		slices.Sort(pages)
		cm[src] = slices.Compact(pages)
	}
	return cm
}

// Sources returns cited sources in lexical order
func (c CitationMap) Sources() []string {
	sources := make([]string, 0, len(c))
	for src := range c {
		sources = append(sources, src)
	}
	slices.Sort(sources)
	return sources
}

// Clone returns a deep copy so that callers never share page slices with a session
func (c CitationMap) Clone() CitationMap {
	if c == nil {
		return nil
	}
	out := make(CitationMap, len(c))
	for src, pages := range c {
		out[src] = slices.Clone(pages)
	}
	return out
}

func (c CitationMap) Equal(other CitationMap) bool {
	if len(c) != len(other) {
		return false
	}
	for src, pages := range c {
		if !slices.Equal(pages, other[src]) {
			return false
		}
	}
	return true
}

// String renders the map as "law.pdf: 3, 51; guide.pdf: 1"
func (c CitationMap) String() string {
	parts := make([]string, 0, len(c))
	for _, src := range c.Sources() {
		pages := make([]string, len(c[src]))
		for i, p := range c[src] {
			pages[i] = fmt.Sprint(p)
		}
		parts = append(parts, src+": "+strings.Join(pages, ", "))
	}
	return strings.Join(parts, "; ")
}
