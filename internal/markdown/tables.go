package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// NoTablesMessage is what TableSections returns when nothing matched.
const NoTablesMessage = "No Table 1 or Table 2 found in Markdown."

var (
	tableHeading   = regexp.MustCompile(`(?i)^TABLE\s*[12]\.`)
	proseSentence  = regexp.MustCompile(`^[A-Z][^.]*\.$`)
	footnoteMark   = regexp.MustCompile(`^[*†‡]`)
	abbreviation   = regexp.MustCompile(`^[A-Z]{2,}\s*=`)
	abbrevHeading  = regexp.MustCompile(`(?i)^Abbreviations:?`)
	tableReference = regexp.MustCompile(`(?i)^See.*Table`)
)

// TableSections keeps only the TABLE 1 and TABLE 2 blocks of a converted
// document. A block runs from its heading until the next heading, and the
// scan ends for good at the first prose sentence longer than 20 characters,
// footnote, abbreviation list or "See ... Table" reference. Markdown heading
// markers in front of TABLE are ignored. The second result is false when no
// block was found, in which case the text is NoTablesMessage.
func TableSections(md string) (string, bool) {
	if md == "" {
		return NoTablesMessage, false
	}

	var (
		b       strings.Builder
		current []string
	)
	flush := func(sep string) {
		if len(current) > 0 {
			b.WriteString(strings.Join(current, "\n"))
			b.WriteString(sep)
		}
	}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)

		if tableHeading.MatchString(strings.TrimSpace(strings.TrimLeft(line, "#"))) {
			flush("\n\n")
			current = []string{strings.TrimSpace(strings.TrimLeft(line, "#"))}
			continue
		}
		if len(current) == 0 {
			continue
		}
		if proseSentence.MatchString(line) && utf8.RuneCountInString(line) > 20 {
			break
		}
		if footnoteMark.MatchString(line) || abbreviation.MatchString(line) ||
			abbrevHeading.MatchString(line) || tableReference.MatchString(line) {
			break
		}
		if line != "" {
			current = append(current, line)
		}
	}
	flush("")

	out := strings.TrimSpace(b.String())
	if out == "" {
		return NoTablesMessage, false
	}
	return out, true
}
