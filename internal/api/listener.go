package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var cleanupWaitGroup sync.WaitGroup

// WaitForCleanup waits until all long-running goroutines shut down cleanly
// or the provided context signals done.
func WaitForCleanup(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanupWaitGroup.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// ListenAndServe starts the REST API
func (a *API) ListenAndServe(ctx context.Context, hostAndPort string) {
	ListenAndServe(ctx, hostAndPort, a.handler)
}

// ListenAndServe serves handler until ctx is done. handler is usually an
// *API, or a reloader.AtomicHandler wrapping one when live configuration
// reload is enabled.
func ListenAndServe(ctx context.Context, hostAndPort string, handler http.Handler) {
	baseCtx, cancel := context.WithCancel(context.Background())

	log := logrus.WithField("component", "api")

	server := &http.Server{
		Addr:              hostAndPort,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second, // to mitigate a Slowloris attack
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	cleanupWaitGroup.Add(1)
	go func() {
		defer cleanupWaitGroup.Done()

		<-ctx.Done()

		defer cancel() // close baseContext

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Minute)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("http server listen failed")
	}
}
