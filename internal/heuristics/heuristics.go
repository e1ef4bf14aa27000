// Package heuristics implements the two peripheral, pure string-transform
// helpers spec §9 calls out as replaceable: question extraction from a
// forwarded child reply, and best-effort path rewriting in an outgoing
// prompt. Neither is part of the four core responsibilities; both are
// deterministic, line-based scans in the style of the teacher's
// internal/discovery package.
package heuristics

import (
	"path/filepath"
	"regexp"
	"strings"
)

// questionLine matches a line that ends in "?", ignoring trailing
// whitespace. ExtractQuestions separately skips a line that is only "?".
var questionLine = regexp.MustCompile(`\?\s*$`)

// ExtractQuestions scans text line by line and returns every line that
// looks like a question, trimmed of leading list/markdown decoration
// ("- ", "* ", "1. ") and surrounding whitespace. Order is preserved;
// blank or decoration-only lines never match.
func ExtractQuestions(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || line == "?" {
			continue
		}
		if !questionLine.MatchString(line) {
			continue
		}
		out = append(out, stripListDecoration(line))
	}
	return out
}

var listDecoration = regexp.MustCompile(`^(?:[-*]\s+|\d+[.)]\s+)`)

func stripListDecoration(line string) string {
	return listDecoration.ReplaceAllString(line, "")
}

// pathToken matches whitespace-delimited tokens that look like relative
// filesystem paths: at least one "/" and no leading scheme like "http://".
var pathToken = regexp.MustCompile(`(^|[\s` + "`" + `'"(])(\.{0,2}/[^\s` + "`" + `'"()]+|[A-Za-z0-9_.-]+/[A-Za-z0-9_./-]+)`)

// RewritePaths rewrites path-shaped tokens in prompt that are relative to
// fromDir so they are instead relative to toDir, by resolving each
// candidate token against fromDir and re-expressing it relative to toDir
// when the result stays meaningful (non-empty, not "."). It is best-effort:
// tokens that don't resolve to an existing relationship between the two
// directories are left untouched, and the function never errors — callers
// treat rewriting as a convenience, not a requirement (spec §4.E, "failures
// surface a note but do not abort"). The second return value reports
// whether any rewrite was made.
func RewritePaths(prompt, fromDir, toDir string) (string, bool) {
	if fromDir == "" || toDir == "" || fromDir == toDir {
		return prompt, false
	}

	rewrote := false
	result := pathToken.ReplaceAllStringFunc(prompt, func(match string) string {
		prefix := ""
		token := match
		if len(match) > 0 {
			r := []rune(match)
			if strings.ContainsRune("\t\n  `'\"(", r[0]) {
				prefix = string(r[0])
				token = string(r[1:])
			}
		}

		if !looksRelative(token) {
			return match
		}

		abs := filepath.Join(fromDir, token)
		rel, err := filepath.Rel(toDir, abs)
		if err != nil || rel == "" || rel == "." {
			return match
		}

		rewrote = true
		return prefix + rel
	})

	return result, rewrote
}

func looksRelative(token string) bool {
	if filepath.IsAbs(token) {
		return false
	}
	if strings.Contains(token, "://") {
		return false
	}
	return strings.Contains(token, "/")
}
