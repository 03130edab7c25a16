package crawler

import (
	"path"
	"path/filepath"
	"strings"
)

// defaultExcludeNames are directory names never descended into, wherever
// they appear under a root.
var defaultExcludeNames = map[string]struct{}{
	".git":                      {},
	".svn":                      {},
	".hg":                       {},
	"node_modules":              {},
	"__pycache__":               {},
	".cache":                    {},
	".npm":                      {},
	".venv":                     {},
	"venv":                      {},
	"$RECYCLE.BIN":              {},
	".Trash":                    {},
	".Trash-1000":               {},
	"System Volume Information": {},
	"AppData":                   {},
}

// defaultExcludePaths are multi-component directory paths matched against
// the trailing components of a directory.
var defaultExcludePaths = []string{
	"Library/Caches",
}

// Excluder decides which directories are pruned and which files are skipped.
type Excluder struct {
	patterns []string
}

// NewExcluder builds an excluder from the built-in set plus extra patterns.
//
// Pattern forms:
//   - "name" or a glob such as "*.tmp" matches a base name
//   - "**/name/**" matches a directory of that name at any depth
//   - "dir/**" matches a root-relative directory and everything below it
//   - "a/b" matches when the trailing path components equal a/b
func NewExcluder(patterns []string) *Excluder {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Excluder{patterns: cleaned}
}

// ExcludeDir reports whether the directory at relPath should be pruned.
// relPath is relative to the crawl root.
func (x *Excluder) ExcludeDir(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	name := baseName(rel)

	if isHidden(name) {
		return true
	}
	if _, ok := defaultExcludeNames[name]; ok {
		return true
	}
	for _, p := range defaultExcludePaths {
		if hasComponentSuffix(rel, p) {
			return true
		}
	}
	for _, p := range x.patterns {
		if matchDirPattern(rel, name, p) {
			return true
		}
	}
	return false
}

// ExcludeFile reports whether the file at relPath should be skipped.
func (x *Excluder) ExcludeFile(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	name := baseName(rel)

	if isHidden(name) {
		return true
	}
	for _, p := range x.patterns {
		if matchFilePattern(rel, name, p) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func baseName(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[i+1:]
	}
	return rel
}

// hasComponentSuffix reports whether rel ends with the components of suffix.
func hasComponentSuffix(rel, suffix string) bool {
	return rel == suffix || strings.HasSuffix(rel, "/"+suffix)
}

func matchDirPattern(rel, name, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/"):
		inner := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		return globMatch(inner, name) || hasComponentSuffix(rel, inner)
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	case strings.Contains(pattern, "/"):
		return hasComponentSuffix(rel, pattern)
	default:
		return globMatch(pattern, name)
	}
}

func matchFilePattern(rel, name, pattern string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/"):
		inner := strings.TrimPrefix(pattern, "**/")
		if strings.HasSuffix(inner, "/**") {
			return false
		}
		return globMatch(inner, name)
	case strings.HasSuffix(pattern, "/**"):
		// Directory patterns prune at the directory level.
		return false
	case strings.Contains(pattern, "/"):
		dir, file := path.Split(pattern)
		return globMatch(file, name) && hasComponentSuffix(strings.TrimSuffix(rel, "/"+name), strings.TrimSuffix(dir, "/"))
	default:
		return globMatch(pattern, name)
	}
}

func globMatch(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
