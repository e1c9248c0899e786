// Package textseg splits raw text into ordered synthesizable units.
package textseg

import (
	"strings"
	"unicode"
)

// Sentence-terminal runes. A terminator stays attached to the unit it closes.
var terminators = map[rune]bool{
	'。': true,
	'．': true,
	'！': true,
	'？': true,
	'；': true,
	'.': true,
	'!': true,
	'?': true,
	';': true,
	'…': true,
	'\n': true,
}

// Segment splits text into sentence units on terminal punctuation. Units whose
// meaningful rune count falls below minUnitLength are merged into the previous
// unit; the first unit is always kept standalone even when short. Empty or
// whitespace-only input yields nil.
func Segment(text string, minUnitLength int) []string {
	raw := split(text)
	if len(raw) == 0 {
		return nil
	}

	var units []string
	for _, u := range raw {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if len(units) > 0 && MeaningfulLen(u) < minUnitLength {
			units[len(units)-1] += u
			continue
		}
		units = append(units, u)
	}
	return units
}

// split cuts text after every run of terminator runes.
func split(text string) []string {
	var out []string
	var b strings.Builder
	inTerminator := false

	for _, r := range text {
		if terminators[r] {
			inTerminator = true
			b.WriteRune(r)
			continue
		}
		if inTerminator {
			if u := strings.TrimSpace(b.String()); u != "" {
				out = append(out, u)
			}
			b.Reset()
			inTerminator = false
		}
		b.WriteRune(r)
	}
	if u := strings.TrimSpace(b.String()); u != "" {
		out = append(out, u)
	}
	return out
}

// MeaningfulLen counts letters and digits across all scripts, ignoring
// punctuation and whitespace.
func MeaningfulLen(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
