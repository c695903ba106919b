package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handlerFunc is an http handler that can return an error, picked up by
// HandleResponseError.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// middlewareHandler runs before a handler and may replace the request
// context or abort with an error.
type middlewareHandler func(w http.ResponseWriter, r *http.Request) (context.Context, error)

type router struct {
	chi chi.Router
}

func newRouter() *router {
	return &router{chi: chi.NewRouter()}
}

func (r *router) Route(pattern string, fn func(*router)) {
	r.chi.Route(pattern, func(c chi.Router) {
		fn(&router{chi: c})
	})
}

func (r *router) Get(pattern string, fn handlerFunc) {
	r.chi.Get(pattern, handler(fn))
}

func (r *router) Post(pattern string, fn handlerFunc) {
	r.chi.Post(pattern, handler(fn))
}

func (r *router) Put(pattern string, fn handlerFunc) {
	r.chi.Put(pattern, handler(fn))
}

func (r *router) Delete(pattern string, fn handlerFunc) {
	r.chi.Delete(pattern, handler(fn))
}

func (r *router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.chi.ServeHTTP(w, req)
}

// Use applies an error-aware middleware to the router.
func (r *router) Use(fn middlewareHandler) {
	r.chi.Use(middleware(fn))
}

// UseBypass applies a standard net/http middleware to the router.
func (r *router) UseBypass(fn func(http.Handler) http.Handler) {
	r.chi.Use(fn)
}

func (r *router) With(fn middlewareHandler) *router {
	return &router{chi: r.chi.With(middleware(fn))}
}

func (r *router) WithBypass(fn func(http.Handler) http.Handler) *router {
	return &router{chi: r.chi.With(fn)}
}

func handler(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleResponseError(err, w, r)
		}
	}
}

func middleware(fn middlewareHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := fn(w, r)
			if err != nil {
				HandleResponseError(err, w, r)
				return
			}
			if ctx != nil {
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
