package fetcher

import (
	"strings"

	"golang.org/x/net/html"
)

// blockElements start a new visual line when rendered
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "ol": true, "p": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true,
	"ul": true,
}

// skippedElements never contribute text
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "svg": true,
}

// RenderText renders nodes the way a browser lays out their text: block
// elements break lines, runs of whitespace collapse and blank lines are
// dropped.
func RenderText(nodes ...*html.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		render(n, &sb)
		sb.WriteByte('\n')
	}

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// render walks the tree writing text and line breaks
func render(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		// Source line breaks are layout whitespace, not visual lines
		writeCollapsed(sb, n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(c, sb)
	}
	if block {
		sb.WriteByte('\n')
	}
}

// writeCollapsed writes s with every run of HTML whitespace as one space
func writeCollapsed(sb *strings.Builder, s string) {
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			space = true
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteRune(r)
	}
	if space {
		sb.WriteByte(' ')
	}
}
