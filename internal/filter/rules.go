package filter

import (
	"fmt"
	"regexp"

	"talkback/pkg/models"
)

// Rule is a declarative text rewrite loaded from configuration. Rules are
// data, never evaluated code: a pattern, a replacement, and a position in
// the chain.
type Rule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	// Regex treats Pattern as a regular expression; replacement may use
	// $1-style group references.
	Regex bool `yaml:"regex"`
	// WordBoundary wraps a literal pattern in word boundaries.
	WordBoundary bool `yaml:"wordBoundary"`
	// Insert positions the rule: "start", "end", "before:NAME" or
	// "after:NAME". Empty means before the length limiter.
	Insert string `yaml:"insert"`
}

// ruleFilter is one compiled rule.
type ruleFilter struct {
	name    string
	re      *regexp.Regexp
	repl    string
	literal bool
}

func compileRule(r Rule) (Filter, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("compile rule: missing name")
	}
	if r.Pattern == "" {
		return nil, fmt.Errorf("compile rule %q: missing pattern", r.Name)
	}

	pattern := r.Pattern
	literal := true
	if r.Regex {
		literal = false
	} else {
		pattern = regexp.QuoteMeta(pattern)
	}
	if r.WordBoundary {
		pattern = `\b` + pattern + `\b`
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
	}

	return ruleFilter{name: r.Name, re: re, repl: r.Replacement, literal: literal}, nil
}

func (f ruleFilter) Name() string { return f.name }

func (f ruleFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	if f.literal {
		msg.Content = f.re.ReplaceAllLiteralString(msg.Content, f.repl)
	} else {
		msg.Content = f.re.ReplaceAllString(msg.Content, f.repl)
	}
	return msg
}
