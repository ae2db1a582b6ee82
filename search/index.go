// Package search provides a small in-process document index used as the
// backend of the web search tool when no external search service is wired.
package search

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Result is one ranked hit.
type Result struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type document struct {
	id       string
	content  string
	terms    map[string]struct{}
	metadata map[string]any
}

// Index is a process-local document index. Search scores documents by the
// fraction of query terms they contain (case-insensitive); documents without
// any matching term are not returned. Ties keep insertion order.
//
// Concurrency: protected by RWMutex.
type Index struct {
	mu   sync.RWMutex
	docs []document
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Add stores a document and returns its id.
func (ix *Index) Add(content string, metadata map[string]any) string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id := fmt.Sprintf("doc_%d", len(ix.docs))
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	ix.docs = append(ix.docs, document{id: id, content: content, terms: termSet(content), metadata: md})
	return id
}

// LoadFile adds every non-empty line of path as a document.
func (ix *Index) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ix.Add(line, map[string]any{"source": path})
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read corpus: %w", err)
	}
	return n, nil
}

// Len returns the number of stored documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns up to limit documents matching query, best first. A
// non-positive limit returns every match.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := termSet(query)
	if len(q) == 0 {
		return []Result{}, nil
	}

	ix.mu.RLock()
	results := make([]Result, 0)
	for _, d := range ix.docs {
		hits := 0
		for t := range q {
			if _, ok := d.terms[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		md := make(map[string]any, len(d.metadata))
		for k, v := range d.metadata {
			md[k] = v
		}
		results = append(results, Result{
			ID:       d.id,
			Content:  d.content,
			Score:    float64(hits) / float64(len(q)),
			Metadata: md,
		})
	}
	ix.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func termSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
