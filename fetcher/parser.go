package fetcher

import (
	"io"
	"net/url"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
)

// defaultExcludedExts are resource extensions the Crawl Engine never needs
// to enqueue: they can be neither an HTML page to keep exploring nor a PNG
// to collect, so resolving and queuing them is pure waste.
var defaultExcludedExts = []string{".css", ".js", ".ico", ".svg", ".woff", ".woff2", ".pdf", ".zip", ".gz", ".mp4"}

// GoqueryParser implements Parser on top of goquery, walking a parsed HTML
// document for anchor and canonical-link targets.
type GoqueryParser struct {
	excludedExts map[string]bool
}

// NewGoqueryParser creates a parser pre-seeded with defaultExcludedExts.
// Call ExcludeExtensions to add more.
func NewGoqueryParser() GoqueryParser {
	p := GoqueryParser{excludedExts: make(map[string]bool)}
	p.ExcludeExtensions(defaultExcludedExts...)
	return p
}

// ExcludeExtensions adds extensions to the default exclusion pool.
func (p *GoqueryParser) ExcludeExtensions(exts ...string) {
	for _, ext := range exts {
		p.excludedExts[ext] = true
	}
}

// Parse reads an HTML document from reader and extracts every in-scope
// link, resolved against baseURL. Deduplication across the crawl as a
// whole is the visited set's job (component D), not the parser's: Parse
// returns every link it finds on this page, even if another page already
// yielded the same URL.
func (p GoqueryParser) Parse(baseURL string, reader io.Reader) ([]*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, err
	}
	return p.extractLinks(doc, baseURL), nil
}

// extractLinks walks a parsed document for anchor hrefs and canonical
// link targets, skipping excluded extensions and unresolvable hrefs.
func (p GoqueryParser) extractLinks(doc *goquery.Document, baseURL string) []*url.URL {
	if doc == nil {
		return nil
	}
	foundURLs := []*url.URL{}
	doc.Find("a,link").FilterFunction(func(i int, element *goquery.Selection) bool {
		hrefLink, hrefExists := element.Attr("href")
		linkType, linkExists := element.Attr("rel")
		if !hrefExists || p.excludedExts[filepath.Ext(hrefLink)] {
			return false
		}
		anchorOk := element.Is("a")
		linkOk := linkExists && linkType == "canonical"
		return anchorOk || linkOk
	}).Each(func(i int, element *goquery.Selection) {
		res, _ := element.Attr("href")
		if link, ok := resolveRelativeURL(baseURL, res); ok {
			foundURLs = append(foundURLs, link)
		}
	})
	return foundURLs
}

// resolveRelativeURL resolves a possibly-relative href against baseURL,
// returning an absolute URL and whether resolution succeeded.
func resolveRelativeURL(baseURL string, relative string) (*url.URL, bool) {
	u, err := url.Parse(relative)
	if err != nil {
		return nil, false
	}
	if u.Hostname() != "" {
		return u, true
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, false
	}

	return base.ResolveReference(u), true
}
