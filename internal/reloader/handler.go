package reloader

import (
	"net/http"
	"sync/atomic"
)

// AtomicHandler is an http.Handler whose underlying handler can be swapped
// while serving, which is how a configuration reload takes effect without
// restarting the listener.
type AtomicHandler struct {
	val atomic.Value
}

type handlerHolder struct {
	http.Handler
}

func NewAtomicHandler(h http.Handler) *AtomicHandler {
	ah := &AtomicHandler{}
	ah.Store(h)
	return ah
}

func (ah *AtomicHandler) Store(h http.Handler) {
	ah.val.Store(handlerHolder{h})
}

func (ah *AtomicHandler) load() http.Handler {
	return ah.val.Load().(handlerHolder).Handler
}

func (ah *AtomicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ah.load().ServeHTTP(w, r)
}
