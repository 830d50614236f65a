// Package parser extracts conversational turns from session log formats.
// Parsers are pure: bytes in, messages out. Malformed records are skipped
// individually so one bad line never poisons a batch.
package parser

import (
	"bufio"
	"bytes"

	"talkback/pkg/models"
)

// GrowthMode describes how a format's files accumulate content, which
// decides how the watcher reads them.
type GrowthMode string

const (
	// ModeAppend files grow in place; the watcher reads from the last
	// processed offset.
	ModeAppend GrowthMode = "append"
	// ModeNewFile formats write complete files; only files created after
	// watcher start are processed, each in full.
	ModeNewFile GrowthMode = "newfile"
)

// Parser turns raw log bytes into parsed messages.
type Parser interface {
	Name() string
	Mode() GrowthMode
	Parse(data []byte, path string) []models.ParsedMessage
}

// Builtin returns the parsers talkback ships with, keyed by name.
func Builtin() map[string]Parser {
	parsers := []Parser{
		ClaudeParser{},
		NewCodexParser(),
		TextParser{},
	}
	m := make(map[string]Parser, len(parsers))
	for _, p := range parsers {
		m[p.Name()] = p
	}
	return m
}

// scanLines invokes fn for every newline-delimited record in data. The
// buffer allows single records up to 1 MiB; assistant turns with large
// embedded diffs routinely pass 64 KiB.
func scanLines(data []byte, fn func(line []byte)) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
}
