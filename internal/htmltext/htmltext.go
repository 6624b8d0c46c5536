// Package htmltext turns the raw_content HTML of a grant into plain text
// excerpts and rewrites its links for display on the site.
package htmltext

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// PlainText extracts the text nodes of s, collapsing whitespace. When max > 0
// the result is cut to at most max runes, ending with an ellipsis.
func PlainText(s string, max int) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return truncate(collapse(b.String()), max)
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			}
			if isBlock(tag) {
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "br", "div", "li", "ul", "ol", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	cut := strings.TrimRight(string(r[:max-1]), " ,.;:")
	return cut + "…"
}

// AbsolutizeLinks resolves relative href and src attributes against base and
// opens outbound links in a new tab. The markup is otherwise left as is.
func AbsolutizeLinks(s, base string) (string, error) {
	return rewrite(s, base)
}

// ugc is safe for concurrent use once built.
var ugc = bluemonday.UGCPolicy()

// Clean is AbsolutizeLinks for third-party markup: the HTML first goes
// through the bluemonday UGC policy, which keeps formatting, tables, images
// and http(s)/mailto links and drops everything else.
func Clean(s, base string) (string, error) {
	return rewrite(ugc.Sanitize(s), base)
}

func rewrite(s, base string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		baseURL = nil
	}

	resolve := func(attr string) func(int, *goquery.Selection) {
		return func(_ int, sel *goquery.Selection) {
			v, _ := sel.Attr(attr)
			v = strings.TrimSpace(v)
			if v == "" || strings.HasPrefix(v, "#") || baseURL == nil {
				return
			}
			ref, err := url.Parse(v)
			if err != nil || ref.Scheme == "mailto" || ref.Scheme == "tel" {
				return
			}
			sel.SetAttr(attr, baseURL.ResolveReference(ref).String())
		}
	}

	doc.Find("a[href], area[href]").Each(resolve("href"))
	doc.Find("img[src]").Each(resolve("src"))

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			sel.SetAttr("target", "_blank")
			sel.SetAttr("rel", "noopener")
		}
	})

	return doc.Find("body").Html()
}
