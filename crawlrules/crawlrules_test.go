package crawlrules

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ece252labs/imaging/fetcher"
	"github.com/ece252labs/imaging/visited"
)

func robotsServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("User-agent: *\nDisallow: */baz/*\nCrawl-delay: 2\n"))
	})
	return httptest.NewServer(mux)
}

func TestGetRobotsTxtGroupFound(t *testing.T) {
	srv := robotsServer()
	defer srv.Close()

	domain, _ := url.Parse(srv.URL)
	r := New(domain, visited.New(), 100*time.Millisecond)
	f := fetcher.New(fetcher.Options{})

	if !r.GetRobotsTxtGroup(context.Background(), f, "test-agent", domain) {
		t.Fatalf("GetRobotsTxtGroup: expected a group to be found")
	}
	if delay := r.CrawlDelay(); delay < 2*time.Second {
		t.Errorf("CrawlDelay: got %v, want at least the robots.txt crawl-delay of 2s", delay)
	}
}

func TestGetRobotsTxtGroupMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	domain, _ := url.Parse(srv.URL)
	r := New(domain, visited.New(), 100*time.Millisecond)
	f := fetcher.New(fetcher.Options{})

	if r.GetRobotsTxtGroup(context.Background(), f, "test-agent", domain) {
		t.Fatalf("GetRobotsTxtGroup: expected no group when robots.txt is missing")
	}
	if delay := r.CrawlDelay(); delay <= 0 {
		t.Errorf("CrawlDelay: expected a positive jittered delay, got %v", delay)
	}
}

func TestAllowedDisallowsRepeatVisit(t *testing.T) {
	domain, _ := url.Parse("http://example.com")
	r := New(domain, visited.New(), 0)

	link, _ := url.Parse("http://example.com/foo")
	if !r.Allowed(link) {
		t.Fatalf("Allowed: expected first visit to be allowed")
	}
	if r.Allowed(link) {
		t.Errorf("Allowed: expected a repeat visit to be disallowed")
	}
}

func TestAllowedRejectsOffDomain(t *testing.T) {
	domain, _ := url.Parse("http://example.com")
	r := New(domain, visited.New(), 0)

	link, _ := url.Parse("http://other.com/foo")
	if r.Allowed(link) {
		t.Errorf("Allowed: expected an off-domain link to be disallowed")
	}
}

func TestAllowedRespectsRobotsDisallow(t *testing.T) {
	domain, _ := url.Parse("http://example.com")
	r := New(domain, visited.New(), 0)
	srv := robotsServer()
	defer srv.Close()
	robotsDomain, _ := url.Parse(srv.URL)
	f := fetcher.New(fetcher.Options{})
	r.GetRobotsTxtGroup(context.Background(), f, "test-agent", robotsDomain)

	disallowed, _ := url.Parse("http://example.com/a/baz/b")
	if r.Allowed(disallowed) {
		t.Errorf("Allowed: expected a robots.txt-disallowed path to be rejected")
	}
}

func TestUpdateLastDelayWidensDelay(t *testing.T) {
	domain, _ := url.Parse("http://example.com")
	r := New(domain, visited.New(), 0)
	r.UpdateLastDelay(3 * time.Second)
	if delay := r.CrawlDelay(); delay < 3*time.Second {
		t.Errorf("CrawlDelay: got %v, want at least the squared last response time", delay)
	}
}
