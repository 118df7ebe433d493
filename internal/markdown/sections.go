package markdown

import (
	"regexp"
	"strings"
)

// Section is the text found under one article header. A header that occurs
// more than once collects every occurrence in Contents.
type Section struct {
	Header   string   `json:"header"`
	Contents []string `json:"contents"`
}

var sectionHeader = regexp.MustCompile(`(?i)(?:^|\s)(objective|introduction|background|methods?|results?|conclusions?|keywords)`)

// Sections splits article text on the usual headers (objective,
// introduction, background, methods, results, conclusions, keywords). A
// header only counts when followed by whitespace, a colon or the end of the
// text. Singular and plural spellings map to one plural header.
func Sections(text string) []Section {
	type cut struct{ start, end int }
	var cuts []cut
	for _, m := range sectionHeader.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if end < len(text) {
			switch text[end] {
			case ' ', '\t', '\n', '\r', '\f', '\v', ':':
			default:
				continue
			}
		}
		cuts = append(cuts, cut{start, end})
	}

	var out []Section
	index := map[string]int{}
	for i, c := range cuts {
		next := len(text)
		if i+1 < len(cuts) {
			next = cuts[i+1].start
		}
		header := normalizeHeader(text[c.start:c.end])
		content := strings.TrimSpace(text[c.end:next])
		content = strings.TrimSpace(strings.TrimPrefix(content, ":"))
		if j, ok := index[header]; ok {
			out[j].Contents = append(out[j].Contents, content)
			continue
		}
		index[header] = len(out)
		out = append(out, Section{Header: header, Contents: []string{content}})
	}
	return out
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	switch h {
	case "result", "results":
		return "results"
	case "conclusion", "conclusions":
		return "conclusions"
	case "method", "methods":
		return "methods"
	}
	return h
}
