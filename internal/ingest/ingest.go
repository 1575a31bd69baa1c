// Package ingest turns raw input bytes into the immutable normalized
// Document the pipeline operates on: canonical text, overlapping chunks and
// a sentence index.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/folioenrich/folioenrich/internal/model"
	"golang.org/x/net/html"
)

// Ingest extracts plain text from source bytes in the given format.
func Ingest(source []byte, format model.DocumentFormat) (string, error) {
	switch format {
	case model.FormatPlainText, "":
		return string(source), nil
	case model.FormatMarkdown:
		return stripMarkdown(string(source)), nil
	case model.FormatHTML:
		return extractVisibleText(source)
	default:
		return "", fmt.Errorf("%w: unsupported format %q", model.ErrInput, format)
	}
}

// extractVisibleText walks the HTML tree collecting text nodes, skipping
// script/style content.
func extractVisibleText(source []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(source)))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", model.ErrInput, err)
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				buf.WriteString("\n")
			}
		}
	}
	walk(doc)
	return buf.String(), nil
}

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLink    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmph    = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
	mdCode    = regexp.MustCompile("`+([^`]*)`+")
)

// stripMarkdown removes markdown syntax while preserving the text content.
func stripMarkdown(s string) string {
	s = mdHeading.ReplaceAllString(s, "")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdEmph.ReplaceAllString(s, "$1")
	s = mdCode.ReplaceAllString(s, "$1")
	return s
}
