package middleware

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LogRequest traces every request except the rest timer polling, the app
// fires one of those per second while a countdown runs.
func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/sessions/timer") {
				log.Tracef(" ====> request [%s] path: [%s] [UA: %s]", r.Method, r.URL.Path, r.Header.Get("User-Agent"))
			}
			next.ServeHTTP(w, r)
		})
	}
}
