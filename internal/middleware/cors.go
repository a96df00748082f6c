package middleware

import (
	"net/http"
	"slices"

	"github.com/rs/cors"
)

// CORS returns a middleware that answers browser preflight requests and adds
// the Access-Control-* headers for the given origins ("*" allows any).
//
// Credentials (cookies) are only allowed for an explicit origin list: a
// wildcard origin with credentials would let any site drive the admin
// session. The student API authenticates with a bearer header and does not
// need them.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	if wildcard {
		allowedOrigins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !wildcard,
		MaxAge:           600, // seconds a preflight result may be cached
	})
	return c.Handler
}
