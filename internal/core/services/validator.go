package services

import (
	"regexp"
	"strings"

	"github.com/ancora-labs/ancora/internal/core/domain"
)

// figurePattern matches numeric claims: an optional currency prefix,
// digits with thousands separators, an optional decimal part, and an
// optional percent suffix. Range and ratio punctuation ("3-5%",
// "28/36") falls outside the character classes, so compound figures
// split into their parts.
var figurePattern = regexp.MustCompile(`\$?\d[\d,]*(?:\.\d+)?%?`)

// Validator checks that an answer's numeric claims appear in the
// retrieved chunks. Policy answers live and die by their thresholds: a
// credit score or ratio the sources never state is a fabrication no
// matter how plausible it reads.
type Validator struct{}

// NewValidator creates a grounding validator.
func NewValidator() *Validator {
	return &Validator{}
}

// NumericClaims returns the significant numeric tokens the answer
// asserts, in order of appearance. Citation markup is stripped first
// (section numbers inside source notes are not claims) and bare single
// digits are ignored; they are nearly always list markers.
func (v *Validator) NumericClaims(answer string) []string {
	return significantFigures(stripCitationMarkup(answer))
}

// percentFormPattern matches a percent form trailing a numeral: "%",
// " %", or the word "percent".
var percentFormPattern = regexp.MustCompile(`(?i)^ ?(%|percent\b)`)

// Unsupported returns the answer's numeric claims that no retrieved
// chunk contains. Thousands separators and the "$" prefix are
// normalised away ("$1,250.50" in the answer is supported by "1250.50"
// in a source), but a "%" suffix on a claim is significant: "43%" is
// only supported by a source stating 43 as a percentage, never by a
// bare or dollar 43.
func (v *Validator) Unsupported(answer string, items []domain.RetrievedItem) []string {
	claims := v.NumericClaims(answer)
	if len(claims) == 0 {
		return nil
	}

	supported := make(map[string]struct{})
	percent := make(map[string]struct{})
	for _, item := range items {
		text := item.Chunk.Text
		for _, loc := range figurePattern.FindAllStringIndex(text, -1) {
			figure := text[loc[0]:loc[1]]
			key := bareNumeral(figure)
			supported[key] = struct{}{}
			if strings.HasSuffix(figure, "%") || percentFormPattern.MatchString(text[loc[1]:]) {
				percent[key] = struct{}{}
			}
		}
	}

	var unsupported []string
	seen := make(map[string]struct{})
	for _, claim := range claims {
		key := bareNumeral(claim)
		source := supported
		if strings.HasSuffix(claim, "%") {
			source = percent
		}
		if _, ok := source[key]; ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unsupported = append(unsupported, claim)
	}
	return unsupported
}

// stripCitationMarkup removes context references and source notes so
// their numerals are not mistaken for claims.
func stripCitationMarkup(text string) string {
	text = contextRefPattern.ReplaceAllString(text, "")
	return sourceNotePattern.ReplaceAllString(text, "")
}

// significantFigures extracts numeric tokens, dropping bare single
// digits.
func significantFigures(text string) []string {
	var figures []string
	for _, m := range figurePattern.FindAllString(text, -1) {
		if len(m) > 1 {
			figures = append(figures, m)
		}
	}
	return figures
}

// bareNumeral strips currency and percent affixes and thousands
// separators, leaving the numeral itself.
func bareNumeral(figure string) string {
	figure = strings.TrimPrefix(figure, "$")
	figure = strings.TrimSuffix(figure, "%")
	return strings.ReplaceAll(figure, ",", "")
}
