package extract

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// renderMarkdown converts the selected content nodes to markdown, preserving
// heading levels, lists, link text and targets, emphasis, code and
// blockquotes. Decorative markup and images are dropped. The walk is a plain
// depth-first traversal in document order, so output is deterministic.
func renderMarkdown(nodes []*html.Node) string {
	var b strings.Builder
	r := &mdRenderer{out: &b}
	for _, n := range nodes {
		r.block(n, 0)
	}
	return collapseBlankLines(strings.TrimSpace(b.String()))
}

type mdRenderer struct {
	out *strings.Builder
}

var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "main": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"ul": {}, "ol": {}, "li": {}, "pre": {}, "blockquote": {},
	"table": {}, "hr": {}, "figure": {}, "figcaption": {},
	"header": {}, "footer": {}, "aside": {}, "nav": {}, "body": {},
}

var skipTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "iframe": {},
	"form": {}, "svg": {}, "button": {}, "select": {}, "input": {},
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	_, ok := blockTags[n.Data]
	return ok
}

// block renders one node in block context.
func (r *mdRenderer) block(n *html.Node, depth int) {
	if n == nil {
		return
	}

	switch n.Type {
	case html.TextNode:
		r.paragraph(inlineText(n))
		return
	case html.ElementNode:
	default:
		return
	}

	if _, skip := skipTags[n.Data]; skip {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		text := cleanInline(childrenInline(n))
		if text != "" {
			fmt.Fprintf(r.out, "\n\n%s %s\n\n", strings.Repeat("#", level), text)
		}
	case "p", "figcaption":
		r.paragraph(childrenInline(n))
	case "ul":
		r.list(n, depth, false)
	case "ol":
		r.list(n, depth, true)
	case "pre":
		code := strings.Trim(rawText(n), "\n")
		if code != "" {
			fmt.Fprintf(r.out, "\n\n```\n%s\n```\n\n", code)
		}
	case "blockquote":
		var inner strings.Builder
		sub := &mdRenderer{out: &inner}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			sub.block(c, depth)
		}
		quoted := strings.TrimSpace(collapseBlankLines(inner.String()))
		if quoted != "" {
			r.out.WriteString("\n\n")
			for _, line := range strings.Split(quoted, "\n") {
				r.out.WriteString("> " + line + "\n")
			}
			r.out.WriteString("\n")
		}
	case "hr":
		r.out.WriteString("\n\n---\n\n")
	case "table":
		r.table(n)
	default:
		r.container(n, depth)
	}
}

// container renders a generic element: consecutive inline children become one
// paragraph, block children recurse.
func (r *mdRenderer) container(n *html.Node, depth int) {
	var para strings.Builder
	flush := func() {
		r.paragraph(para.String())
		para.Reset()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isBlock(c) {
			flush()
			r.block(c, depth)
			continue
		}
		para.WriteString(inlineText(c))
	}
	flush()
}

// paragraph writes a block of inline text if it has any content.
func (r *mdRenderer) paragraph(raw string) {
	text := cleanInline(raw)
	if text == "" {
		return
	}
	r.out.WriteString("\n\n" + text + "\n\n")
}

// list renders ul/ol items, indenting nested lists two spaces per level.
func (r *mdRenderer) list(n *html.Node, depth int, ordered bool) {
	r.out.WriteString("\n\n")
	indent := strings.Repeat("  ", depth)
	idx := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		idx++
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", idx)
		}

		var text strings.Builder
		var nested []*html.Node
		for g := c.FirstChild; g != nil; g = g.NextSibling {
			if g.Type == html.ElementNode && (g.Data == "ul" || g.Data == "ol") {
				nested = append(nested, g)
				continue
			}
			text.WriteString(inlineText(g))
		}

		item := cleanInline(text.String())
		if item != "" {
			r.out.WriteString(indent + marker + item + "\n")
		}
		for _, sub := range nested {
			var inner strings.Builder
			subR := &mdRenderer{out: &inner}
			subR.list(sub, depth+1, sub.Data == "ol")
			r.out.WriteString(strings.Trim(inner.String(), "\n") + "\n")
		}
	}
	r.out.WriteString("\n")
}

// table renders rows as pipe-delimited lines; layout fidelity is not a goal,
// cell text is.
func (r *mdRenderer) table(n *html.Node) {
	var rows []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "tr" {
			var cells []string
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, cleanInline(childrenInline(c)))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if len(rows) > 0 {
		r.out.WriteString("\n\n" + strings.Join(rows, "\n") + "\n\n")
	}
}

// inlineText renders a node in inline context.
func inlineText(n *html.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type {
	case html.TextNode:
		return normalizeText(n.Data)
	case html.ElementNode:
	default:
		return ""
	}

	if _, skip := skipTags[n.Data]; skip {
		return ""
	}

	switch n.Data {
	case "br":
		return "\n"
	case "img":
		return ""
	case "a":
		href := attr(n, "href")
		text := cleanInline(childrenInline(n))
		if text == "" {
			text = href
		}
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
			return text
		}
		if text == "" {
			return ""
		}
		return "[" + text + "](" + href + ")"
	case "strong", "b":
		if text := cleanInline(childrenInline(n)); text != "" {
			return "**" + text + "**"
		}
		return ""
	case "em", "i":
		if text := cleanInline(childrenInline(n)); text != "" {
			return "*" + text + "*"
		}
		return ""
	case "code":
		if text := strings.TrimSpace(rawText(n)); text != "" {
			return "`" + text + "`"
		}
		return ""
	default:
		return childrenInline(n)
	}
}

func childrenInline(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(inlineText(c))
	}
	return b.String()
}

// rawText returns text content verbatim, for pre/code blocks.
func rawText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(rawText(c))
	}
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// normalizeText collapses internal whitespace runs to single spaces while
// keeping one leading/trailing space when the source had any, so adjacent
// inline fragments stay separated.
func normalizeText(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if isSpaceByte(s[0]) {
		out = " " + out
	}
	if isSpaceByte(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

var (
	multiSpaceRe  = regexp.MustCompile(` {2,}`)
	spaceAroundNL = regexp.MustCompile(` *\n *`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// cleanInline tidies an assembled inline run: single spaces, no space
// padding around the soft line breaks br produced.
func cleanInline(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = spaceAroundNL.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

func collapseBlankLines(s string) string {
	return blankLinesRe.ReplaceAllString(s, "\n\n")
}
