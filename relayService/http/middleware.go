package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tanmay-xvx/controller-relay/internals/logging"
)

// Recoverer recovers handler panics, answers 500 and reports the panic to
// onFault in the background. http.ErrAbortHandler is re-raised untouched so
// net/http can abort the response.
func Recoverer(onFault func(error), logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logging.Component(logger, "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("handler panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()),
					"stack", string(debug.Stack()))

				if r.Header.Get("Connection") != "Upgrade" {
					writeError(w, http.StatusInternalServerError, "Internal server error", "")
				}
				if onFault != nil {
					go onFault(fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
