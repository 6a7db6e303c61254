package emails

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end a line of text when they open or close.
var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "table": true, "ul": true, "ol": true, "hr": true,
}

// HTMLToText approximates the plain text of an HTML body: tags are dropped,
// script and style content is skipped, block elements become line breaks,
// and runs of whitespace collapse to single spaces.
func HTMLToText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))

	var lines []string
	var current strings.Builder
	skip := 0

	flush := func() {
		line := strings.Join(strings.Fields(current.String()), " ")
		current.Reset()
		if line == "" {
			// keep at most one blank line between paragraphs
			if len(lines) > 0 && lines[len(lines)-1] != "" {
				lines = append(lines, "")
			}
			return
		}
		lines = append(lines, line)
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return strings.TrimSpace(strings.Join(lines, "\n"))
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" || tag == "head" || tag == "title" {
				switch {
				case tt == html.StartTagToken:
					skip++
				case tt == html.EndTagToken && skip > 0:
					skip--
				}
				continue
			}
			if blockTags[tag] {
				if tag == "br" {
					lines = append(lines, strings.Join(strings.Fields(current.String()), " "))
					current.Reset()
					continue
				}
				flush()
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			current.Write(z.Text())
			current.WriteByte(' ')
		}
	}
}
