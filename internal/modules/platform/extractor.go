// Package platform extracts APIR-style product codes from platform approved
// product documents and restricts a dataset to the codes found.
package platform

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// standardPattern matches well-formed codes. tolerantPattern additionally
// matches codes split by a stray space or hyphen, as produced by imperfect
// PDF text extraction; its shorter core quantifier keeps it from swallowing
// unrelated text across the separator. Both run on every page: tolerant
// matches are cleaned and only kept when the standard pass did not already
// find them.
var (
	standardPattern = regexp.MustCompile(`\b[A-Z]{3}[0-9A-Z]{2,9}(?:AU)?\b`)
	tolerantPattern = regexp.MustCompile(`\b[A-Z]{3}[\s\-]?[0-9A-Z]{2,6}[\s\-]?(?:AU)?\b`)
)

// minCodeLength filters out short all-caps words that happen to match the
// candidate shape.
const minCodeLength = 5

// Extractor pulls product codes out of document page text.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates a code extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		logger: log.With().Str("component", "platform_extractor").Logger(),
	}
}

// PageCodes holds the codes found on one page, in order of appearance with
// duplicates removed.
type PageCodes struct {
	Page  int      `json:"page"`
	Codes []string `json:"codes"`
}

// ExtractPages scans each page's text and returns per-page code lists plus
// the deduplicated union across all pages. Per page the standard codes come
// first, followed by any extra codes the tolerant pattern repaired.
func (e *Extractor) ExtractPages(pages []string) ([]PageCodes, []string) {
	var perPage []PageCodes
	var all []string
	seenAll := make(map[string]bool)

	for pageNum, text := range pages {
		seenPage := make(map[string]bool)
		var codes []string
		add := func(code string) {
			if !plausibleCode(code) || seenPage[code] {
				return
			}
			seenPage[code] = true
			codes = append(codes, code)
			if !seenAll[code] {
				seenAll[code] = true
				all = append(all, code)
			}
		}

		for _, raw := range standardPattern.FindAllString(text, -1) {
			add(raw)
		}
		for _, raw := range tolerantPattern.FindAllString(text, -1) {
			add(cleanCode(raw))
		}
		perPage = append(perPage, PageCodes{Page: pageNum + 1, Codes: codes})
	}

	e.logger.Info().
		Int("pages", len(pages)).
		Int("codes", len(all)).
		Msg("Codes extracted")
	return perPage, all
}

// Extract scans a single block of text and returns its deduplicated codes.
func (e *Extractor) Extract(text string) []string {
	_, all := e.ExtractPages([]string{text})
	return all
}

// cleanCode strips the separators the tolerant pattern admits.
func cleanCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// plausibleCode rejects candidates that are too short or contain no digit at
// all; plain uppercase words are never product codes.
func plausibleCode(code string) bool {
	if len(code) < minCodeLength {
		return false
	}
	for _, r := range code {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
