package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestDetectLanguageDominant(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "x", "b.py": "x", "c.py": "x", "d.js": "x",
	})
	lang, err := DetectLanguage(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "python", lang)
}

func TestDetectLanguageSingleFile(t *testing.T) {
	root := writeTree(t, map[string]string{"main.go": "package main"})
	lang, err := DetectLanguage(filepath.Join(root, "main.go"), nil)
	require.NoError(t, err)
	assert.Equal(t, "go", lang)
}

func TestDetectLanguageRustBeatsC(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.rs": "x", "b.rs": "x", "c.c": "x", "d.c": "x", "e.go": "x",
	})
	lang, err := DetectLanguage(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "rust", lang)
}

func TestDetectLanguageTypeScriptBeatsJavaScript(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.ts": "x", "b.js": "x", "c.js": "x", "d.go": "x", "e.go": "x",
	})
	lang, err := DetectLanguage(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "typescript", lang)
}

func TestDetectLanguageSkipsVendoredDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py":                  "x",
		"node_modules/big.js":   "x",
		"node_modules/more.js":  "x",
		"vendor/dep.go":         "x",
		".hidden/secret.rs":     "x",
	})
	lang, err := DetectLanguage(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "python", lang)
}

func TestDetectLanguageNoSourceFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"notes.txt": "x"})
	_, err := DetectLanguage(root, nil)
	require.Error(t, err)
}

func TestDetectLanguageRespectsEnabledList(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "x", "b.py": "x", "c.go": "x",
	})
	lang, err := DetectLanguage(root, []string{"go"})
	require.NoError(t, err)
	assert.Equal(t, "go", lang)
}

func TestDiscoverFilesFiltersByExtensionAndExclusions(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/a.py":       "x",
		"src/b.py":       "x",
		"src/ignored.js": "x",
		"tests/c.py":     "x",
	})
	files, err := DiscoverFiles(root, "python", []string{"tests/"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Contains(t, f, "src/")
	}
}

func TestDiscoverDocuments(t *testing.T) {
	root := writeTree(t, map[string]string{
		"README.md":        "# readme",
		"LICENSE":          "MIT",
		"docs/guide.txt":   "guide",
		"docs/logo.png":    "binary",
		"src/main.py":      "code",
		"CHANGELOG.md":     "changes",
		"docs/api/spec.md": "api",
	})
	docs, err := DiscoverDocuments(root, nil)
	require.NoError(t, err)

	var names []string
	for _, d := range docs {
		rel, _ := filepath.Rel(root, d)
		names = append(names, filepath.ToSlash(rel))
	}
	assert.ElementsMatch(t, []string{
		"README.md", "LICENSE", "docs/guide.txt", "CHANGELOG.md", "docs/api/spec.md",
	}, names)
}
