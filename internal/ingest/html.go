package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags are elements that terminate a line when an export was saved as
// HTML. Keeping line structure matters: the email parser keys on "From:"
// header lines and the blank line before the body.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "table": true,
	"blockquote": true, "pre": true,
}

// htmlToText reduces an HTML export to plain text, dropping scripts and
// styles and emitting a newline per block element. Empty blocks become
// blank lines, which preserves the header/body separator.
func htmlToText(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	last := byte('\n')
	write := func(s string) {
		if s == "" {
			return
		}
		b.WriteString(s)
		last = s[len(s)-1]
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if last != '\n' && last != ' ' {
					write(" ")
				}
				write(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			write("\n")
		}
	}
	walk(doc)
	return b.String(), nil
}
