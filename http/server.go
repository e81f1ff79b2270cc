package http

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/hashfs"
	"github.com/codebingo/routecheck"
	"github.com/codebingo/routecheck/http/assets"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Generic HTTP metrics.
var (
	requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routecheck_http_request_count",
		Help: "Total number of requests by route",
	}, []string{"route"})

	requestSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routecheck_http_request_seconds",
		Help: "Total amount of request time by route, in seconds",
	}, []string{"route"})
)

// ShutdownTimeout is the time given for outstanding requests to finish before shutdown.
const ShutdownTimeout = 1 * time.Second

// Routes served by the single page application. Any other path renders the
// application's "not found" page, also without a server-side redirect.
var Routes = []string{"/", "/admin", "/game", "/congratulations", "/leaderboard"}

// Server represents a fixture of the bingo application. It serves a single
// page application whose client-side router applies the same route guards as
// the real application, so the verifier can be exercised end-to-end without
// the real application running.
type Server struct {
	ln     net.Listener
	server *http.Server
	router *mux.Router

	// Bind address for the server's listener.
	Addr string

	Logger zerolog.Logger
}

// NewServer returns a new instance of Server.
func NewServer() *Server {
	// Create a new server that wraps the net/http server & add a gorilla router.
	s := &Server{
		server: &http.Server{},
		router: mux.NewRouter(),
		Logger: zerolog.Nop(),
	}
	s.server.Handler = s.router

	// Report panics to external service.
	s.router.Use(reportPanic)
	s.router.Use(trackMetrics)

	// Handle embedded asset serving. This serves files embedded from http/assets.
	s.router.PathPrefix("/assets/").
		Handler(http.StripPrefix("/assets/", hashfs.FileServer(assets.FS)))

	// Setup endpoint to display deployed version.
	s.router.HandleFunc("/debug/version", s.handleVersion).Methods("GET")
	s.router.HandleFunc("/debug/commit", s.handleCommit).Methods("GET")

	// Known application routes are registered individually so they are
	// tracked by name in metrics. Everything else falls back to the same page
	// through a catch-all route so middleware still applies.
	for _, path := range Routes {
		s.router.HandleFunc(path, s.handleIndex).Methods("GET")
	}
	s.router.HandleFunc("/{path:.*}", s.handleIndex).Methods("GET")

	return s
}

// Port returns the TCP port for the running server.
// This is useful in tests where we allocate a random port by using ":0".
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL returns the local base URL of the running server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port())
}

// Open begins listening on the bind address.
func (s *Server) Open() (err error) {
	if s.ln, err = net.Listen("tcp", s.Addr); err != nil {
		return err
	}

	// Begin serving requests on the listener. We use Serve() instead of
	// ListenAndServe() because it allows us to check for listen errors (such
	// as trying to use an already open port) synchronously.
	go s.server.Serve(s.ln)

	s.Logger.Debug().Str("url", s.URL()).Msg("fixture listening")
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleIndex serves the application shell. Routing happens in the browser.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	fmt.Fprintln(w, `<!DOCTYPE html>`)
	fmt.Fprintln(w, `<html>`)
	fmt.Fprintln(w, `<head>`)
	fmt.Fprintln(w, `<meta charset="utf-8">`)
	fmt.Fprintln(w, `<title>Code Bingo</title>`)
	fmt.Fprintf(w, `<link rel="stylesheet" href="/assets/%s">`+"\n", html.EscapeString(assets.FS.HashName("css/app.css")))
	fmt.Fprintln(w, `</head>`)
	fmt.Fprintln(w, `<body>`)
	fmt.Fprintln(w, `<div id="app"></div>`)
	fmt.Fprintf(w, `<script src="/assets/%s"></script>`+"\n", html.EscapeString(assets.FS.HashName("scripts/app.js")))
	fmt.Fprintln(w, `</body>`)
	fmt.Fprintln(w, `</html>`)
}

// handleVersion displays the deployed version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(routecheck.Version))
}

// handleCommit displays the deployed commit.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(routecheck.Commit))
}

// trackMetrics is middleware for tracking the request count and timing per route.
func trackMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Obtain path template & start time of request.
		t := time.Now()
		tmpl := requestPathTemplate(r)

		// Delegate to next handler in middleware chain.
		next.ServeHTTP(w, r)

		if tmpl != "" {
			requestCount.WithLabelValues(tmpl).Inc()
			requestSeconds.WithLabelValues(tmpl).Add(float64(time.Since(t).Seconds()))
		}
	})
}

// requestPathTemplate returns the route path template for r.
func requestPathTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, _ := route.GetPathTemplate()
	return tmpl
}

// reportPanic is middleware for catching panics and reporting them.
func reportPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				routecheck.ReportPanic(err)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ListenAndServeDebug runs an HTTP server exposing Prometheus metrics on /metrics.
func ListenAndServeDebug(addr string) error {
	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, h)
}
