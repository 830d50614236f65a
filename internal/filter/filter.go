// Package filter rewrites parsed messages into speech-friendly text.
// Filters run in a fixed, configurable order; any filter may drop the
// message entirely by returning nil.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"talkback/pkg/models"
)

// Built-in filter names, usable in Options.Disabled and Rule.Insert.
const (
	NameRole      = "role"
	NameTags      = "tags"
	NameMarkdown  = "markdown"
	NameURL       = "url"
	NameEmoji     = "emoji"
	NameFilepath  = "filepath"
	NamePronounce = "pronounce"
	NameLength    = "length"
)

// DefaultMaxLength bounds spoken messages when no limit is configured.
const DefaultMaxLength = 500

// Filter transforms a message. Returning nil drops it from the pipeline.
type Filter interface {
	Name() string
	Apply(msg *models.ParsedMessage) *models.ParsedMessage
}

// Func adapts a plain function into a Filter, for embedders that wire
// compiled filters instead of declarative rules.
type Func struct {
	FilterName string
	Fn         func(*models.ParsedMessage) *models.ParsedMessage
}

// Name implements Filter.
func (f Func) Name() string { return f.FilterName }

// Apply implements Filter.
func (f Func) Apply(msg *models.ParsedMessage) *models.ParsedMessage { return f.Fn(msg) }

// Options configures the default chain.
type Options struct {
	// Disabled lists built-in filter names to leave out.
	Disabled []string
	// URLToken is spoken in place of URLs. Defaults to "link".
	URLToken string
	// SpeakParentDir includes the immediate parent directory when speaking
	// paths ("bin slash node" instead of "node").
	SpeakParentDir bool
	// Lexicon extends the default pronunciation table.
	Lexicon map[string]string
	// MinLength drops messages shorter than this many runes. Zero keeps all.
	MinLength int
	// MaxLength truncates longer messages. Zero means DefaultMaxLength.
	MaxLength int
	// Rules are declarative custom filters inserted into the chain.
	Rules []Rule
}

// Chain applies filters in order, short-circuiting on drop.
type Chain struct {
	filters []Filter
}

// NewChain builds a chain from explicit filters, in the given order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// NewDefaultChain assembles the standard chain: role gate, control-tag
// stripper, markdown stripper, URL simplifier, emoji stripper, filepath
// simplifier, pronunciation rewriter and length limiter, with custom rules
// spliced in.
func NewDefaultChain(opts Options) (*Chain, error) {
	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[name] = true
	}

	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	all := []Filter{
		roleGate{},
		tagsFilter{},
		newMarkdownFilter(),
		newURLFilter(opts.URLToken),
		emojiFilter{},
		newFilepathFilter(opts.SpeakParentDir),
		newPronounceFilter(opts.Lexicon),
		lengthFilter{min: opts.MinLength, max: maxLen},
	}

	filters := make([]Filter, 0, len(all)+len(opts.Rules))
	for _, f := range all {
		if !disabled[f.Name()] {
			filters = append(filters, f)
		}
	}

	filters, err := insertRules(filters, opts.Rules)
	if err != nil {
		return nil, err
	}

	return &Chain{filters: filters}, nil
}

// Apply runs the message through every filter. Returns nil when any filter
// drops it or when the text comes out empty.
func (c *Chain) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	if msg == nil {
		return nil
	}
	// Work on a copy so callers keep the original text for the log.
	out := *msg
	cur := &out
	for _, f := range c.filters {
		cur = f.Apply(cur)
		if cur == nil {
			return nil
		}
		cur.Content = strings.TrimSpace(cur.Content)
		if cur.Content == "" {
			return nil
		}
	}
	return cur
}

// Names lists the active filters in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.filters))
	for i, f := range c.filters {
		names[i] = f.Name()
	}
	return names
}

// roleGate passes assistant messages and drops everything else. User
// messages are logged upstream; they never reach synthesis.
type roleGate struct{}

func (roleGate) Name() string { return NameRole }

func (roleGate) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	if msg.Role != models.RoleAssistant {
		return nil
	}
	return msg
}

var spaceRegex = regexp.MustCompile(`\s+`)

// collapseSpaces normalizes runs of whitespace left behind by stripping.
func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}

// insertRules splices declarative rules into the built-in order.
func insertRules(filters []Filter, rules []Rule) ([]Filter, error) {
	for _, r := range rules {
		f, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		idx, err := insertIndex(filters, r.Insert)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		filters = append(filters[:idx], append([]Filter{f}, filters[idx:]...)...)
	}
	return filters, nil
}

func insertIndex(filters []Filter, insert string) (int, error) {
	// Custom rules default to running just before the length limiter so
	// their output is still subject to truncation.
	if insert == "" {
		insert = "before:" + NameLength
	}
	switch insert {
	case "start":
		return 0, nil
	case "end":
		return len(filters), nil
	}

	anchor, ok := strings.CutPrefix(insert, "before:")
	after := false
	if !ok {
		anchor, ok = strings.CutPrefix(insert, "after:")
		after = true
	}
	if !ok {
		return 0, fmt.Errorf("bad insert position %q", insert)
	}

	for i, f := range filters {
		if f.Name() == anchor {
			if after {
				return i + 1, nil
			}
			return i, nil
		}
	}
	// Anchor disabled or unknown: fall back to the end of the chain.
	return len(filters), nil
}
