package filter

import (
	"strings"

	"talkback/pkg/models"
)

// filepathFilter collapses file paths to their last segment so a path reads
// as the thing it names instead of a litany of directories.
type filepathFilter struct {
	speakParent bool
}

func newFilepathFilter(speakParent bool) filepathFilter {
	return filepathFilter{speakParent: speakParent}
}

func (filepathFilter) Name() string { return NameFilepath }

func (f filepathFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	fields := strings.Fields(msg.Content)
	for i, tok := range fields {
		lead, core, trail := splitPunct(tok)
		if isPathToken(core) {
			fields[i] = lead + f.speakPath(core) + trail
		}
	}
	msg.Content = strings.Join(fields, " ")
	return msg
}

const (
	leadPunct  = "\"'(`[{"
	trailPunct = "\"')`]}.,;:!?"
)

// splitPunct separates surrounding punctuation from a token so sentence
// structure survives the rewrite.
func splitPunct(tok string) (lead, core, trail string) {
	core = tok
	for len(core) > 0 && strings.ContainsAny(core[:1], leadPunct) {
		lead += core[:1]
		core = core[1:]
	}
	for len(core) > 0 && strings.ContainsAny(core[len(core)-1:], trailPunct) {
		trail = core[len(core)-1:] + trail
		core = core[:len(core)-1]
	}
	return lead, core, trail
}

// isPathToken reports whether a token reads as a filesystem path: an
// explicit prefix, or at least two separators for bare relative paths
// (so "and/or" stays prose).
func isPathToken(core string) bool {
	if core == "" || strings.Contains(core, "://") {
		return false
	}
	if strings.HasPrefix(core, "/") || strings.HasPrefix(core, "~/") ||
		strings.HasPrefix(core, "./") || strings.HasPrefix(core, "../") {
		return strings.Trim(core, "/~.") != ""
	}
	return strings.Count(core, "/") >= 2
}

// speakPath reduces a path to its spoken form.
func (f filepathFilter) speakPath(core string) string {
	var segs []string
	for _, s := range strings.Split(core, "/") {
		if s == "" || s == "." || s == ".." || s == "~" {
			continue
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return core
	}

	spoken := speakSegment(segs[len(segs)-1])
	if f.speakParent && len(segs) >= 2 {
		spoken = speakSegment(segs[len(segs)-2]) + " slash " + spoken
	}
	return spoken
}

// speakSegment renders one path segment: dots become the word "dot" and a
// short all-caps extension is spelled letter by letter.
func speakSegment(name string) string {
	parts := strings.Split(name, ".")
	words := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 || part == "" {
			if i > 0 {
				words = append(words, "dot")
			}
			if part == "" {
				continue
			}
		}
		if i == len(parts)-1 && i > 0 && isShortUpper(part) {
			words = append(words, spellOut(part))
			continue
		}
		words = append(words, part)
	}
	if len(words) == 0 {
		return name
	}
	return strings.Join(words, " ")
}

func isShortUpper(s string) bool {
	if len(s) == 0 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func spellOut(s string) string {
	letters := strings.Split(s, "")
	return strings.Join(letters, " ")
}
