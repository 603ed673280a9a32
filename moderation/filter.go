// Package moderation classifies message text against a blocked-word
// list. Matching runs on an Aho-Corasick automaton over a normalized
// view of the text, so leet-speak substitutions and punctuation noise
// do not defeat the list.
package moderation

import (
	"bufio"
	"bytes"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	_ "embed"
)

//go:embed blocked.txt
var defaultList []byte

// leet maps common character substitutions back to their letter.
var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Filter is the content-filter collaborator: Flag classifies a text as
// allowed or blocked, Censor masks the blocked spans instead.
type Filter struct {
	machine *goahocorasick.Machine
	mask    rune
}

// DefaultWords returns the embedded blocked-word list.
func DefaultWords() []string {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(defaultList))
	for scanner.Scan() {
		if word := scanner.Text(); word != "" {
			words = append(words, word)
		}
	}
	return words
}

// NewFilter builds the automaton from a normalized copy of each word.
func NewFilter(words []string, mask rune) (*Filter, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalize([]rune(word), nil)
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{machine: machine, mask: mask}, nil
}

// Flag reports whether the text contains any blocked word.
func (f *Filter) Flag(text string) bool {
	normalized := normalize([]rune(text), nil)
	if len(normalized) == 0 {
		return false
	}
	return len(f.machine.MultiPatternSearch(normalized, true)) > 0
}

// Censor replaces every matched span with the mask rune, preserving
// the original spacing and punctuation around it.
func (f *Filter) Censor(text string) string {
	original := []rune(text)
	var origIdx []int
	normalized := normalize(original, &origIdx)
	if len(normalized) == 0 {
		return text
	}

	spans := f.machine.MultiPatternSearch(normalized, false)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			original[i] = f.mask
		}
	}
	return string(original)
}

// normalize lower-cases, undoes leet substitutions and strips spacing,
// punctuation and symbols. When origIdx is non-nil it records, per kept
// rune, the index it came from in the input.
func normalize(input []rune, origIdx *[]int) []rune {
	out := make([]rune, 0, len(input))
	for i, r := range input {
		if mapped, ok := leet[r]; ok {
			r = mapped
		}
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
		if origIdx != nil {
			*origIdx = append(*origIdx, i)
		}
	}
	return out
}
