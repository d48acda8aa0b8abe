package extract

import (
	"regexp"
	"strings"
)

// Academic noise removed before chunking: trailing bibliography sections
// and in-text citation markers contribute nothing to retrieval and skew
// similarity scores.
var (
	sectionRe = regexp.MustCompile(
		`(?i)\n\s*(References|Bibliography|Citations|Works Cited|Acknowledgments|Appendix|Appendices)\s*\n`)
	parenCiteRe   = regexp.MustCompile(`\([^)]*\b(?:et al\.,?\s*\d{4}|\d{4})[^)]*\)`)
	bracketCiteRe = regexp.MustCompile(`\[\d+(?:-\d+)?\]`)
	superCiteRe   = regexp.MustCompile(`\^\d+`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// Preprocess strips bibliography sections and citations from raw text and
// collapses whitespace.
func Preprocess(text string) string {
	if loc := sectionRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	text = parenCiteRe.ReplaceAllString(text, "")
	text = bracketCiteRe.ReplaceAllString(text, "")
	text = superCiteRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
