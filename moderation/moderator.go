// Package moderation censors forbidden words in generated output before it
// reaches the shared log. Matching is resistant to leet speak and noise
// characters (punctuation, spacing) inserted inside a word.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

// mapping ties each rune of the normalized text back to its index in the
// original, so a match found on the normalized form can be starred out in
// the original without disturbing spacing.
type mapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized form of
// the word list. Words that normalize to nothing (pure noise) are skipped.
func NewModerator(words []string, replacement rune, log *slog.Logger) (*Moderator, error) {
	var patterns [][]rune
	for _, word := range words {
		if norm := normalize(word).normalized; len(norm) > 0 {
			patterns = append(patterns, norm)
		}
	}

	if len(patterns) == 0 {
		return &Moderator{replacement: replacement, log: log}, nil
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: machine, replacement: replacement, log: log}, nil
}

// Censor stars out every forbidden span and returns the censored text plus
// the normalized words that matched.
func (m *Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil {
		return original, nil
	}
	mapped := normalize(original)
	if len(mapped.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapped.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var matched []string
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapped.origIdx) {
			continue
		}
		matched = append(matched, string(span.Word))

		from := mapped.origIdx[start]
		to := mapped.origIdx[end-1] + 1
		for i := from; i < to; i++ {
			origRunes[i] = m.replacement
		}
	}
	return string(origRunes), matched
}

// normalize lowercases, undoes common leet substitutions, strips noise
// runes, and records where each surviving rune came from.
func normalize(input string) mapping {
	origRunes := []rune(input)
	out := mapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}

	for i, r := range origRunes {
		plain := unleet(r)
		if noise(plain) {
			continue
		}
		out.normalized = append(out.normalized, unicode.ToLower(plain))
		out.origIdx = append(out.origIdx, i)
	}
	return out
}

// unleet maps common leet-speak characters back to their plain letters.
func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func noise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
