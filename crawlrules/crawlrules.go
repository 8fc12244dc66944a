// Package crawlrules implements the per-domain politeness policy the
// Crawl Engine consults before every fetch: robots.txt allow/disallow,
// a three-way crawl-delay resolution, and a subdomain scoping check, all
// layered on top of the Engine's Visited Set so that a URL is pushed to
// the frontier at most once.
package crawlrules

import (
	"context"
	"math"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/ece252labs/imaging/fetcher"
	"github.com/ece252labs/imaging/visited"
)

// robotsTxtPath is the well-known path every origin is expected to serve
// its crawling directives at.
const robotsTxtPath string = "/robots.txt"

// Rules holds the politeness state for a single crawl rooted at one
// domain: its robots.txt group (if any), the fixed/last-response delays,
// and the shared Visited Set used to dedupe frontier pushes.
//
// There are three possible delays for a given domain: the robots.txt
// crawl-delay (when a group was found), a random delay computed from a
// configured fixed delay, and a backoff derived from the last response
// time. CrawlDelay uses whichever of them is largest.
type Rules struct {
	baseDomain  *url.URL
	visited     *visited.Set
	robotsGroup *robotstxt.Group
	fixedDelay  time.Duration
	lastDelay   time.Duration
	mutex       sync.RWMutex
}

// New creates a Rules scoped to baseDomain, sharing the crawl's Visited
// Set and a base politeness delay.
func New(baseDomain *url.URL, v *visited.Set, fixedDelay time.Duration) *Rules {
	return &Rules{baseDomain: baseDomain, visited: v, fixedDelay: fixedDelay}
}

// Allowed reports whether link is eligible to be pushed onto the
// frontier: it must not have been seen before (enforced through the
// Visited Set), must stay within the crawl's starting host, and must be
// permitted by the domain's robots.txt group, if one was found.
func (r *Rules) Allowed(link *url.URL) bool {
	if !r.visited.InsertIfAbsent(r.baseDomain.String(), link.String()) {
		return false
	}
	if !subdomain(r.baseDomain, link) {
		return false
	}
	if r.robotsGroup != nil {
		return r.robotsGroup.Test(link.RequestURI())
	}
	return true
}

// CrawlDelay returns the delay to respect before the next request to
// this domain, choosing the largest of: the robots.txt crawl-delay, a
// randomized value between 0.5x and 1.5x the fixed delay, and a backoff
// derived from the last response time.
func (r *Rules) CrawlDelay() time.Duration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	var robotsDelay time.Duration
	if r.robotsGroup != nil {
		robotsDelay = r.robotsGroup.CrawlDelay
	}
	randomDelay := randDelay(r.fixedDelay)
	baseDelay := time.Duration(math.Max(float64(randomDelay), float64(robotsDelay)))
	return time.Duration(math.Max(float64(r.lastDelay), float64(baseDelay)))
}

// UpdateLastDelay records the response time of the most recent request,
// squared, as the backoff component of the next CrawlDelay.
func (r *Rules) UpdateLastDelay(lastResponseTime time.Duration) {
	r.mutex.Lock()
	r.lastDelay = time.Duration(math.Pow(lastResponseTime.Seconds(), 2.0) * float64(time.Second))
	r.mutex.Unlock()
}

// GetRobotsTxtGroup fetches and parses domain's robots.txt, returning
// whether a usable group for userAgent was found. A missing or
// unparseable robots.txt is treated as "allow everything", matching the
// convention that the absence of robots.txt grants full access.
func (r *Rules) GetRobotsTxtGroup(ctx context.Context, f fetcher.Fetcher, userAgent string, domain *url.URL) bool {
	rel, _ := url.Parse(robotsTxtPath)
	target := domain.ResolveReference(rel)
	result, err := f.Fetch(ctx, target.String())
	if err != nil {
		return false
	}
	data, err := robotstxt.FromStatusAndBytes(result.Status, result.Body)
	if err != nil {
		return false
	}
	r.robotsGroup = data.FindGroup(userAgent)
	return r.robotsGroup != nil
}

// randDelay returns a random duration between 0.5x and 1.5x value.
func randDelay(value time.Duration) time.Duration {
	if value == 0 {
		return 0
	}
	lo, hi := 0.5*float64(value), 1.5*float64(value)
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

// subdomain reports whether link stays on the same host as domain (or
// carries no host of its own, i.e. it was resolved relative to it).
func subdomain(domain, link *url.URL) bool {
	return link.Hostname() == domain.Hostname() || link.Hostname() == ""
}
