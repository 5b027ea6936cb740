// Package diff computes word-granularity differences between two content
// snapshots. It is a pure function of its inputs and has no storage side
// effects; call it as often as needed for version comparison views.
package diff

import (
	"strings"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type ChangeType string

const (
	Equal  ChangeType = "equal"
	Insert ChangeType = "insert"
	Delete ChangeType = "delete"
)

// Change is one run of words sharing the same diff outcome.
type Change struct {
	Type ChangeType `json:"type"`
	Text string     `json:"text"`
}

// Words diffs two texts at word granularity. Each word keeps its trailing
// whitespace, so concatenating the Equal+Insert runs reproduces the new
// text exactly.
func Words(oldText, newText string) []Change {
	oldTokens := tokenize(oldText)
	newTokens := tokenize(newText)

	oldRunes, newRunes, lookup := tokensToRunes(oldTokens, newTokens)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	changes := make([]Change, 0, len(diffs))
	for _, d := range diffs {
		var builder strings.Builder
		for _, r := range d.Text {
			builder.WriteString(lookup[r])
		}
		text := builder.String()
		if text == "" {
			continue
		}
		changeType := Equal
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			changeType = Insert
		case diffmatchpatch.DiffDelete:
			changeType = Delete
		}
		if n := len(changes); n > 0 && changes[n-1].Type == changeType {
			changes[n-1].Text += text
			continue
		}
		changes = append(changes, Change{Type: changeType, Text: text})
	}
	return changes
}

// tokenize splits text into words, each carrying the whitespace that
// follows it.
func tokenize(text string) []string {
	tokens := make([]string, 0)
	var current strings.Builder
	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			current.WriteRune(r)
			continue
		}
		if inSpace {
			tokens = append(tokens, current.String())
			current.Reset()
			inSpace = false
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// tokensToRunes maps each distinct token to a private rune so the rune-level
// diff operates on whole words.
func tokensToRunes(oldTokens, newTokens []string) ([]rune, []rune, map[rune]string) {
	index := make(map[string]rune)
	lookup := make(map[rune]string)
	next := rune(1)

	encode := func(tokens []string) []rune {
		runes := make([]rune, 0, len(tokens))
		for _, token := range tokens {
			r, ok := index[token]
			if !ok {
				r = next
				next++
				index[token] = r
				lookup[r] = token
			}
			runes = append(runes, r)
		}
		return runes
	}

	return encode(oldTokens), encode(newTokens), lookup
}
