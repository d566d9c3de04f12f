package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node below node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText turns any unicode space (&nbsp; included) into a plain space, drops non-printable
// runes, trims and collapses runs of whitespace.
func CleanText(s string) string {
	out := strings.Builder{}
	for _, c := range s {
		if unicode.IsSpace(c) {
			out.WriteRune(' ')
			continue
		}
		if unicode.IsPrint(c) {
			out.WriteRune(c)
		}
	}
	text := strings.TrimSpace(out.String())
	return innerWhitespace.ReplaceAllString(text, " ")
}

// SelectionText is the cleaned text of every node in sel.
func SelectionText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	return CleanText(buffer.String())
}
