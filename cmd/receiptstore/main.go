package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"backoffice/internal/app/logger"
	mw "backoffice/internal/app/middleware"
	"backoffice/pkg/receiptstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"
)

func main() {
	// setting up signal capturing
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		osCall := <-stop
		logger.Global().Info().Str("signal", fmt.Sprintf("%+v", osCall)).Msg("System call")
		cancel()
	}()

	listenAddr := pflag.StringP("listen-addr", "a", "127.0.0.1:8090", "Address to listen on")
	dir := pflag.StringP("dir", "d", "./receipts-data", "Directory objects are stored in")
	publicURL := pflag.StringP("public-url", "u", "http://127.0.0.1:8090", "Base URL objects are served from")
	maxBytes := pflag.Int64P("max-bytes", "m", 5<<20, "Largest accepted object")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose output")
	pflag.Parse()

	l := logger.New(*verbose, true)

	if err := runServer(ctx, *listenAddr, *dir, *publicURL, *maxBytes, l); err != nil {
		l.Fatal().Err(err).Msg("Server run failed")
	}
}

func runServer(ctx context.Context, listenAddr, dir, publicURL string, maxBytes int64, l logger.Logger) (err error) {
	store, err := receiptstore.NewServer(dir, publicURL, maxBytes)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(l))
	store.Routes(r)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}

	go func() {
		l.Info().Str("listen_address", listenAddr).Str("dir", dir).Msg("Listening incoming connections")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("")
		}
	}()

	l.Info().Msg("Server started")
	<-ctx.Done()
	l.Info().Msg("Server stopped")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.Info().Msg("Server exited properly")

	return nil
}
