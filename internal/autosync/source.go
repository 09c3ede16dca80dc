package autosync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lingod/internal/translate"
)

// DirSource treats every .md and .txt file in a directory as a pending
// document, keyed by file name. Good enough for a content directory kept in
// sync by an external publisher.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Pending(ctx context.Context) ([]translate.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".md", ".txt":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]translate.Document, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, translate.Document{ID: name, Body: string(b)})
	}
	return docs, nil
}
