package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Glob expands a pattern into existing file paths. Patterns follow
// filepath.Match syntax, extended with one "**" segment that matches any
// number of directories ("~/.claude/projects/**/*.jsonl").
func Glob(pattern string) ([]string, error) {
	base, rest, ok := splitDoubleStar(pattern)
	if !ok {
		return filepath.Glob(pattern)
	}

	// Validate the trailing pattern up front so a bad pattern surfaces as
	// an error instead of silently matching nothing.
	if _, err := filepath.Match(rest, ""); err != nil {
		return nil, err
	}

	var out []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: skip it, keep walking the rest.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		if matchSuffix(rest, rel) {
			out = append(out, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return out, err
}

// MatchPattern reports whether path matches the pattern, honoring the same
// single "**" extension as Glob.
func MatchPattern(pattern, path string) bool {
	path = filepath.Clean(path)

	base, rest, ok := splitDoubleStar(pattern)
	if !ok {
		matched, err := filepath.Match(pattern, path)
		return err == nil && matched
	}

	rel, err := filepath.Rel(filepath.Clean(base), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return matchSuffix(rest, rel)
}

// patternBase returns the literal directory prefix of a pattern, the
// deepest path with no wildcards. That directory anchors the fsnotify watch
// and the recursive walk.
func patternBase(pattern string) string {
	base, _, ok := splitDoubleStar(pattern)
	if ok {
		return base
	}
	dir := pattern
	for strings.ContainsAny(dir, "*?[") {
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return dir
}

// splitDoubleStar cuts a pattern at its "**" segment. ok is false when the
// pattern has none.
func splitDoubleStar(pattern string) (base, rest string, ok bool) {
	sep := string(filepath.Separator)
	marker := sep + "**" + sep
	idx := strings.Index(pattern, marker)
	if idx < 0 {
		if strings.HasSuffix(pattern, sep+"**") {
			return pattern[:len(pattern)-3], "*", true
		}
		return "", "", false
	}
	return pattern[:idx], pattern[idx+len(marker):], true
}

// matchSuffix matches the post-** part of a pattern against a base-relative
// path: the pattern must match the path's trailing segments.
func matchSuffix(rest, rel string) bool {
	restSegs := strings.Split(rest, string(filepath.Separator))
	relSegs := strings.Split(rel, string(filepath.Separator))
	if len(relSegs) < len(restSegs) {
		return false
	}
	tail := relSegs[len(relSegs)-len(restSegs):]
	for i, seg := range restSegs {
		matched, err := filepath.Match(seg, tail[i])
		if err != nil || !matched {
			return false
		}
	}
	return true
}
