package typhoon

import (
	"strings"

	"golang.org/x/net/html"
)

// stripMarkup flattens HTML fragments in structure-mode output into plain
// text. Table cells and rows are separated so tabular data stays readable.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var sb strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			sb.Write(tok.Text())
		case html.EndTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "td", "th":
				sb.WriteByte('\t')
			case "tr", "table", "p", "div", "br":
				sb.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := tok.TagName()
			if string(name) == "br" {
				sb.WriteByte('\n')
			}
		}
	}
}
