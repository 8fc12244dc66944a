package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"
)

func serverMock() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/foo/bar", resourceMock)
	handler.HandleFunc("/strip", stripMock)
	handler.HandleFunc("/missing", http.NotFound)
	return httptest.NewServer(handler)
}

func resourceMock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(
		`<head>
			<link rel="canonical" href="https://example.com/sample-page/" />
			<link rel="canonical" href="/sample-page/" />
		 </head>
		 <body>
			<a href="foo/bar"><img src="/baz.png"></a>
			<img src="/stonk">
			<a href="foo/bar">
		 </body>`,
	))
}

func stripMock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set(fragmentHeader, "7")
	_, _ = w.Write([]byte("fake-strip-bytes"))
}

func TestFetch(t *testing.T) {
	server := serverMock()
	defer server.Close()
	f := New(Options{UserAgent: "test-agent"})
	target := fmt.Sprintf("%s/strip", server.URL)
	res, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Status != 200 {
		t.Errorf("Fetch: expected status 200 got %d", res.Status)
	}
	if !res.IsPNG() {
		t.Errorf("Fetch: expected PNG content type, got %q", res.ContentType)
	}
	if !res.HasFragment || res.FragmentSeq != 7 {
		t.Errorf("Fetch: expected fragment seq 7, got %+v", res)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := serverMock()
	defer server.Close()
	f := New(Options{UserAgent: "test-agent"})
	_, err := f.Fetch(context.Background(), fmt.Sprintf("%s/missing", server.URL))
	if err == nil {
		t.Fatalf("Fetch: expected an error for a 404 response")
	}
}

func TestFetchLinks(t *testing.T) {
	server := serverMock()
	defer server.Close()
	f := New(Options{UserAgent: "test-agent", Parser: NewGoqueryParser()})
	target := fmt.Sprintf("%s/foo/bar", server.URL)
	firstLink, _ := url.Parse("https://example.com/sample-page/")
	secondLink, _ := url.Parse(server.URL + "/sample-page/")
	thirdLink, _ := url.Parse(server.URL + "/foo/bar")
	// The page has two <a href="foo/bar"> anchors; the parser returns every
	// in-scope link it finds on the page and leaves deduplication to the
	// crawl's visited set (component D), so the duplicate survives here.
	expected := []*url.URL{firstLink, secondLink, thirdLink, thirdLink}
	_, links, err := f.FetchLinks(context.Background(), target)
	if err != nil {
		t.Fatalf("FetchLinks failed: %v", err)
	}
	if !reflect.DeepEqual(links, expected) {
		t.Errorf("FetchLinks: expected %v got %v", expected, links)
	}
}
