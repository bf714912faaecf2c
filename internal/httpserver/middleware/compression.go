package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForStreaming wraps a compression middleware to bypass it
// for requests whose response must keep byte-exact Content-Length/Content-Range
// semantics: media streaming (/media/...) and GENA SUBSCRIBE/UNSUBSCRIBE
// requests. Gzipping a byte-range
// response would invalidate the Content-Range contract R3 depends on.
func SkipCompressionForStreaming(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/media/") {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == "SUBSCRIBE" || r.Method == "UNSUBSCRIBE" {
				next.ServeHTTP(w, r)
				return
			}

			compressedHandler.ServeHTTP(w, r)
		})
	}
}
