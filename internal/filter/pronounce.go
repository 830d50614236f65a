package filter

import (
	"regexp"
	"sort"
	"strings"

	"talkback/pkg/models"
)

// DefaultLexicon maps developer vocabulary to spellings TTS engines say
// correctly. Profile configuration extends or overrides it.
var DefaultLexicon = map[string]string{
	"git":     "ghit",
	"kubectl": "cube control",
	"nginx":   "engine x",
	"sudo":    "soo doo",
	"npm":     "en pea em",
	"json":    "jay sahn",
	"yaml":    "yam mull",
	"sql":     "sequel",
	"regex":   "rej ex",
	"cli":     "C L I",
	"api":     "A P I",
	"stdin":   "standard in",
	"stdout":  "standard out",
	"stderr":  "standard error",
}

var (
	acronymSplitRegex = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	camelSplitRegex   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	versionRegex      = regexp.MustCompile(`\b\d+(?:\.\d+)+\b`)
)

type lexEntry struct {
	re   *regexp.Regexp
	repl string
}

// pronounceFilter applies the word lexicon, splits camelCase identifiers,
// and reads version numbers digit by digit.
type pronounceFilter struct {
	entries []lexEntry
}

func newPronounceFilter(extra map[string]string) *pronounceFilter {
	merged := make(map[string]string, len(DefaultLexicon)+len(extra))
	for k, v := range DefaultLexicon {
		merged[strings.ToLower(k)] = v
	}
	for k, v := range extra {
		merged[strings.ToLower(k)] = v
	}

	// Longest-first keeps multi-word entries ahead of their prefixes, and
	// a fixed order keeps rewrites deterministic.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	entries := make([]lexEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, lexEntry{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
			repl: merged[k],
		})
	}
	return &pronounceFilter{entries: entries}
}

func (*pronounceFilter) Name() string { return NamePronounce }

func (f *pronounceFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	text := msg.Content

	text = acronymSplitRegex.ReplaceAllString(text, "$1 $2")
	text = camelSplitRegex.ReplaceAllString(text, "$1 $2")

	text = versionRegex.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m, ".", " dot ")
	})

	for _, e := range f.entries {
		text = e.re.ReplaceAllLiteralString(text, e.repl)
	}

	msg.Content = collapseSpaces(text)
	return msg
}
