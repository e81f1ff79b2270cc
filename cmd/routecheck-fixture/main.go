package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/codebingo/routecheck/http"
	"github.com/rs/zerolog"
)

// main is the entry point to our application binary. However, it has some poor
// usability so we mainly use it to delegate out to our run() function.
func main() {
	// Setup signal handlers.
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() { <-c; cancel() }()

	if err := run(ctx, os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run serves the fixture application until ctx is canceled.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("routecheck-fixture", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "bind address")
	debugAddr := fs.String("debug-addr", "", "serve metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	s := http.NewServer()
	s.Addr = *addr
	s.Logger = logger
	if err := s.Open(); err != nil {
		return err
	}

	if *debugAddr != "" {
		go func() {
			if err := http.ListenAndServeDebug(*debugAddr); err != nil {
				logger.Error().Err(err).Msg("debug server stopped")
			}
		}()
	}

	// Print each route so they can be opened by hand.
	logger.Info().Str("url", s.URL()).Msg("listening")
	for _, path := range http.Routes {
		fmt.Println(s.URL() + path)
	}

	// Wait for CTRL-C.
	<-ctx.Done()

	return s.Close()
}
