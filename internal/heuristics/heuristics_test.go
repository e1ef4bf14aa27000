package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractQuestions(t *testing.T) {
	text := "Here is the summary.\n" +
		"Should I also update the changelog?\n" +
		"- Do you want tests added too?\n" +
		"Not a question.\n" +
		"2. What about the README?\n"

	got := ExtractQuestions(text)
	assert.Equal(t, []string{
		"Should I also update the changelog?",
		"Do you want tests added too?",
		"What about the README?",
	}, got)
}

func TestExtractQuestions_None(t *testing.T) {
	assert.Empty(t, ExtractQuestions("Everything is done.\nNo loose ends."))
}

func TestExtractQuestions_IgnoresBareQuestionMark(t *testing.T) {
	assert.Empty(t, ExtractQuestions("?\n"))
}

func TestRewritePaths_Basic(t *testing.T) {
	out, rewrote := RewritePaths("please check src/main.go for bugs", "/orch", "/child")
	assert.True(t, rewrote)
	assert.Contains(t, out, "src/main.go")
}

func TestRewritePaths_NoOpWhenDirsEqual(t *testing.T) {
	out, rewrote := RewritePaths("check src/main.go", "/same", "/same")
	assert.False(t, rewrote)
	assert.Equal(t, "check src/main.go", out)
}

func TestRewritePaths_NoOpWhenDirsEmpty(t *testing.T) {
	out, rewrote := RewritePaths("check src/main.go", "", "/child")
	assert.False(t, rewrote)
	assert.Equal(t, "check src/main.go", out)
}

func TestRewritePaths_IgnoresURLs(t *testing.T) {
	out, rewrote := RewritePaths("see https://example.com/path for docs", "/orch", "/child")
	assert.False(t, rewrote)
	assert.Equal(t, "see https://example.com/path for docs", out)
}
