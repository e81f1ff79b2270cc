package http_test

import (
	"io/ioutil"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/codebingo/routecheck"
	rchttp "github.com/codebingo/routecheck/http"
	"github.com/prometheus/client_golang/prometheus"
)

// MustOpenServer is a test helper function for starting a new fixture server
// on a random port. Fail on error.
func MustOpenServer(tb testing.TB) *rchttp.Server {
	tb.Helper()

	s := rchttp.NewServer()
	s.Addr = ":0"
	if err := s.Open(); err != nil {
		tb.Fatal(err)
	}
	return s
}

// MustCloseServer is a test helper function for shutting down the server.
// Fail on error.
func MustCloseServer(tb testing.TB, s *rchttp.Server) {
	tb.Helper()
	if err := s.Close(); err != nil {
		tb.Fatal(err)
	}
}

// MustGet issues a GET request against the server. Fail on error.
func MustGet(tb testing.TB, s *rchttp.Server, path string) *http.Response {
	tb.Helper()
	resp, err := http.Get(s.URL() + path)
	if err != nil {
		tb.Fatal(err)
	}
	return resp
}

func TestServer_Index(t *testing.T) {
	s := MustOpenServer(t)
	defer MustCloseServer(t, s)

	// Guarded & unknown paths are all served the shell without redirecting.
	for _, path := range append(rchttp.Routes, "/leaderboard?room=TEST", "/no-such-page") {
		t.Run(path, func(t *testing.T) {
			resp := MustGet(t, s, path)
			defer resp.Body.Close()

			if got, want := resp.StatusCode, http.StatusOK; got != want {
				t.Fatalf("StatusCode=%v, want %v", got, want)
			} else if got, want := resp.Request.URL.RequestURI(), path; got != want {
				t.Fatalf("RequestURI=%q, want %q", got, want)
			}

			doc, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				t.Fatal(err)
			} else if doc.Find("#app").Length() != 1 {
				t.Fatal("expected app container")
			} else if src, _ := doc.Find("script").Attr("src"); !strings.HasPrefix(src, "/assets/scripts/app-") {
				t.Fatalf("unexpected script src: %q", src)
			}
		})
	}
}

func TestServer_Assets(t *testing.T) {
	s := MustOpenServer(t)
	defer MustCloseServer(t, s)

	resp := MustGet(t, s, "/")
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	src, _ := doc.Find("script").Attr("src")

	resp = MustGet(t, s, src)
	defer resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Fatalf("StatusCode=%v, want %v", got, want)
	} else if buf, err := ioutil.ReadAll(resp.Body); err != nil {
		t.Fatal(err)
	} else if !strings.Contains(string(buf), `localStorage.getItem("bingo.admin")`) {
		t.Fatal("expected route guard script")
	}
}

func TestServer_Version(t *testing.T) {
	s := MustOpenServer(t)
	defer MustCloseServer(t, s)

	routecheck.Version = "v1.2.3"
	defer func() { routecheck.Version = "" }()

	resp := MustGet(t, s, "/debug/version")
	defer resp.Body.Close()
	if buf, err := ioutil.ReadAll(resp.Body); err != nil {
		t.Fatal(err)
	} else if got, want := string(buf), "v1.2.3"; got != want {
		t.Fatalf("version=%q, want %q", got, want)
	}
}

// Unknown paths are served through the router so metrics include them.
func TestServer_Metrics(t *testing.T) {
	s := MustOpenServer(t)
	defer MustCloseServer(t, s)

	before := MustRequestCount(t, "/{path:.*}")
	resp := MustGet(t, s, "/no/such/page")
	resp.Body.Close()

	if got, want := MustRequestCount(t, "/{path:.*}"), before+1; got != want {
		t.Fatalf("count=%v, want %v", got, want)
	}
}

// MustRequestCount returns the request count recorded for a route template.
func MustRequestCount(tb testing.TB, route string) float64 {
	tb.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		tb.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "routecheck_http_request_count" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "route" && l.GetValue() == route {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
