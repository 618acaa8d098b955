package index

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// exclusionMatcher holds the cleaned exclusion substrings for one
// (root, patterns) combination. Glob markers are stripped and the
// remainder matched as a substring of both the relative and absolute
// path forms.
type exclusionMatcher struct {
	substrings []string
}

func newExclusionMatcher(patterns []string) *exclusionMatcher {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		c := strings.ReplaceAll(p, "**", "")
		c = strings.ReplaceAll(c, "*", "")
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return &exclusionMatcher{substrings: cleaned}
}

func (m *exclusionMatcher) excluded(relPath, absPath string) bool {
	for _, s := range m.substrings {
		if strings.Contains(relPath, s) || strings.Contains(absPath, s) {
			return true
		}
	}
	return false
}

// matcherCache keeps compiled matchers across runs keyed by root plus
// the joined pattern list; repeated indexing of the same projects reuses
// them.
var matcherCache, _ = lru.New[string, *exclusionMatcher](64)

func matcherFor(root string, patterns []string) *exclusionMatcher {
	key := root + "\x00" + strings.Join(patterns, "\x00")
	if m, ok := matcherCache.Get(key); ok {
		return m
	}
	m := newExclusionMatcher(patterns)
	matcherCache.Add(key, m)
	return m
}

// DiscoverFiles enumerates the tree's source files for one language,
// applying the exclusion patterns. Results are absolute paths in sorted
// order.
func DiscoverFiles(root, language string, excludedPatterns []string) ([]string, error) {
	extensions := make(map[string]bool)
	for _, ext := range LanguageExtensions[language] {
		extensions[ext] = true
	}
	if len(extensions) == 0 {
		return nil, nil
	}

	matcher := matcherFor(root, excludedPatterns)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || (path != root && strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if matcher.excluded(rel, path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// documentExtensions are the text formats indexed as documentation.
var documentExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true,
	".rst": true, ".adoc": true, ".asciidoc": true,
}

// documentNamePrefixes pull in well-known files regardless of extension.
var documentNamePrefixes = []string{
	"README", "CONTRIBUTING", "SECURITY", "CHANGELOG", "LICENSE",
}

// documentDirs are directories whose text files are all documentation.
var documentDirs = []string{"docs", "documentation"}

// binaryExtensions are never indexed as documents even when matched by a
// name prefix.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".exe": true, ".bin": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".svg": true,
}

// DiscoverDocuments enumerates the tree's documentation files: known
// extensions, well-known filenames, and everything under docs
// directories, minus binaries and exclusions.
func DiscoverDocuments(root string, excludedPatterns []string) ([]string, error) {
	matcher := matcherFor(root, excludedPatterns)

	var docs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || (path != root && strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if binaryExtensions[ext] {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if matcher.excluded(rel, path) {
			return nil
		}
		if isDocumentFile(d.Name(), rel, ext) {
			docs = append(docs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}

func isDocumentFile(name, relPath, ext string) bool {
	if documentExtensions[ext] {
		return true
	}
	upper := strings.ToUpper(name)
	for _, prefix := range documentNamePrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts[:len(parts)-1] {
		for _, dir := range documentDirs {
			if strings.EqualFold(part, dir) {
				return true
			}
		}
	}
	return false
}
