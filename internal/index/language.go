package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ferrors "github.com/falconeye/falconeye/internal/errors"
)

// LanguageExtensions maps each supported language to its source file
// extensions.
var LanguageExtensions = map[string][]string{
	"c":          {".c", ".h"},
	"cpp":        {".cpp", ".cc", ".cxx", ".hpp", ".hh"},
	"python":     {".py"},
	"rust":       {".rs"},
	"go":         {".go"},
	"php":        {".php"},
	"java":       {".java"},
	"dart":       {".dart"},
	"javascript": {".js", ".jsx", ".mjs", ".cjs"},
	"typescript": {".ts", ".tsx"},
	"ruby":       {".rb", ".rake"},
}

// ExtensionToLanguage is the reverse of LanguageExtensions.
var ExtensionToLanguage = func() map[string]string {
	m := make(map[string]string)
	for lang, exts := range LanguageExtensions {
		for _, ext := range exts {
			m[ext] = lang
		}
	}
	return m
}()

// skipDirs are never descended into during language detection and file
// discovery.
var skipDirs = map[string]bool{
	"node_modules": true, "__pycache__": true, "venv": true, ".venv": true,
	"env": true, "build": true, "dist": true, "target": true,
	".git": true, ".svn": true, "vendor": true, ".dart_tool": true,
	"Pods": true, "DerivedData": true,
}

// skipSuffixes are compiled-artifact extensions ignored during detection.
var skipSuffixes = []string{".pyc", ".class", ".o", ".so", ".dylib"}

// DetectLanguage determines the dominant language of a path (a tree or a
// single file). enabled, when non-empty, restricts the candidate set.
func DetectLanguage(path string, enabled []string) (string, error) {
	allow := allowSet(enabled)

	info, err := os.Stat(path)
	if err != nil {
		return "", ferrors.New(ferrors.ErrCodeInvalidPath, "cannot stat path for language detection", err)
	}
	if !info.IsDir() {
		lang, ok := ExtensionToLanguage[strings.ToLower(filepath.Ext(path))]
		if !ok || !allowed(allow, lang) {
			return "", ferrors.New(ferrors.ErrCodeUnsupportedLang,
				"unsupported file type: "+filepath.Ext(path), nil)
		}
		return lang, nil
	}

	counts := countFilesByLanguage(path, allow)
	if len(counts) == 0 {
		return "", ferrors.New(ferrors.ErrCodeUnsupportedLang,
			"no supported source files found in "+path, nil)
	}
	return dominantLanguage(counts), nil
}

func allowSet(enabled []string) map[string]bool {
	if len(enabled) == 0 {
		return nil
	}
	m := make(map[string]bool, len(enabled))
	for _, lang := range enabled {
		m[strings.ToLower(lang)] = true
	}
	return m
}

func allowed(allow map[string]bool, lang string) bool {
	return allow == nil || allow[lang]
}

func countFilesByLanguage(root string, allow map[string]bool) map[string]int {
	counts := make(map[string]int)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (path != root && strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		for _, suffix := range skipSuffixes {
			if strings.HasSuffix(name, suffix) {
				return nil
			}
		}
		lang, ok := ExtensionToLanguage[strings.ToLower(filepath.Ext(name))]
		if ok && allowed(allow, lang) {
			counts[lang]++
		}
		return nil
	})
	return counts
}

// dominantLanguage picks the primary language: any language over 60% of
// files wins outright; otherwise mixed-project preferences apply.
func dominantLanguage(counts map[string]int) string {
	type langCount struct {
		lang  string
		count int
	}
	sorted := make([]langCount, 0, len(counts))
	total := 0
	for lang, n := range counts {
		sorted = append(sorted, langCount{lang, n})
		total += n
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].lang < sorted[j].lang
	})

	if float64(sorted[0].count)/float64(total)*100 > 60 {
		return sorted[0].lang
	}

	// Mixed-language tie-breaks.
	if counts["c"] > 0 && counts["rust"] > 0 {
		return "rust"
	}
	if n := counts["dart"]; n > 0 && float64(n)/float64(total)*100 > 20 {
		return "dart"
	}
	if n := counts["python"]; n > 0 && float64(n)/float64(total)*100 > 25 {
		return "python"
	}
	if counts["typescript"] > 0 && counts["javascript"] > 0 {
		return "typescript"
	}
	return sorted[0].lang
}
