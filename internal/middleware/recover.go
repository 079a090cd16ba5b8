package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// Recoverer turns a handler panic into a 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newInterceptor(w)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error().
				Str("request_id", GetRequestInfo(r.Context()).ID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			if !rw.wroteHeader {
				WriteJSON(rw, http.StatusInternalServerError, ErrorBody{
					Error:   "internal_error",
					Message: "Internal server error",
				})
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
