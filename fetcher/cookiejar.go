package fetcher

import "net/http/cookiejar"

// newCookieJar builds the in-memory cookie jar shared by a Fetcher's
// http.Client, so that mirrors/pages relying on session cookies across
// redirects keep working.
func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(nil)
}
