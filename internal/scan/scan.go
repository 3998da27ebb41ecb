// Package scan supplies project context for plan generation: a
// compact textual summary of a directory tree.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultIgnores are glob patterns skipped during the walk.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/dist/**",
	"**/target/**",
	"**/*.min.js",
	"**/.venv/**",
	"**/__pycache__/**",
}

// Scanner walks a project tree and produces a summary string.
type Scanner struct {
	Root     string
	Ignores  []string
	MaxFiles int
}

// New creates a scanner for the given root with default ignores.
func New(root string) *Scanner {
	return &Scanner{
		Root:     root,
		Ignores:  append([]string(nil), defaultIgnores...),
		MaxFiles: 5000,
	}
}

func (s *Scanner) ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range s.Ignores {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Summary walks the tree and returns the context summary handed to
// the plan generator: top-level layout, per-extension tallies, and
// the readme lead if one exists.
func (s *Scanner) Summary() (string, error) {
	info, err := os.Stat(s.Root)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", s.Root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("scan %s: not a directory", s.Root)
	}

	extFiles := map[string]int{}
	var topLevel []string
	total := 0

	err = filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, rerr := filepath.Rel(s.Root, path)
		if rerr != nil || rel == "." {
			return nil
		}
		if s.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.Contains(rel, string(filepath.Separator)) {
			name := rel
			if d.IsDir() {
				name += "/"
			}
			topLevel = append(topLevel, name)
		}
		if d.IsDir() {
			return nil
		}
		total++
		if total > s.MaxFiles {
			return fs.SkipAll
		}
		if ext := filepath.Ext(rel); ext != "" {
			extFiles[ext]++
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", s.Root, err)
	}

	sort.Strings(topLevel)
	exts := make([]string, 0, len(extFiles))
	for ext := range extFiles {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if extFiles[exts[i]] != extFiles[exts[j]] {
			return extFiles[exts[i]] > extFiles[exts[j]]
		}
		return exts[i] < exts[j]
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Project root: %s\n", filepath.Base(absOrSelf(s.Root)))
	fmt.Fprintf(&sb, "Top-level entries: %s\n", strings.Join(topLevel, ", "))
	fmt.Fprintf(&sb, "Files: %d\n", total)
	if len(exts) > 0 {
		sb.WriteString("By extension:")
		limit := len(exts)
		if limit > 10 {
			limit = 10
		}
		for _, ext := range exts[:limit] {
			fmt.Fprintf(&sb, " %s=%d", ext, extFiles[ext])
		}
		sb.WriteString("\n")
	}
	if lead := s.readmeLead(); lead != "" {
		fmt.Fprintf(&sb, "Readme: %s\n", lead)
	}
	return sb.String(), nil
}

// readmeLead returns the first few non-empty lines of the readme.
func (s *Scanner) readmeLead() string {
	for _, name := range []string{"README.md", "README", "readme.md"} {
		data, err := os.ReadFile(filepath.Join(s.Root, name))
		if err != nil {
			continue
		}
		var lines []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines = append(lines, line)
			if len(lines) == 3 {
				break
			}
		}
		return strings.Join(lines, " / ")
	}
	return ""
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
