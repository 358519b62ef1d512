// Package moderation censors forbidden words in message content before it
// is persisted or delivered, so history and live pushes always agree.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds the Aho-Corasick automaton over the normalized word
// list. An empty list yields a pass-through moderator.
func NewModerator(words []string, replacement rune) (Moderator, error) {
	if len(words) == 0 {
		return Moderator{replacement: replacement}, nil
	}
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		if norm, _ := normalize(w); len(norm) > 0 {
			patterns = append(patterns, norm)
		}
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: machine, replacement: replacement}, nil
}

// Censor replaces every character of a matched pattern with the
// replacement rune, preserving spacing and punctuation of the original.
// It returns the censored text and the normalized words that matched.
func (m Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil {
		return original, nil
	}
	norm, origIdx := normalize(original)
	if len(norm) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(norm, false)
	if len(spans) == 0 {
		return original, nil
	}

	runes := []rune(original)
	found := make([]string, 0, len(spans))
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		found = append(found, string(span.Word))
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes), found
}

// normalize lowercases, folds common leet substitutions and strips noise,
// keeping a mapping from normalized positions back to original rune
// positions so censoring can target the original text.
func normalize(input string) ([]rune, []int) {
	orig := []rune(input)
	norm := make([]rune, 0, len(orig))
	origIdx := make([]int, 0, len(orig))
	for i, r := range orig {
		r = unfoldLeet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		norm = append(norm, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	return norm, origIdx
}

func unfoldLeet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	case '7':
		return 't'
	default:
		return r
	}
}
