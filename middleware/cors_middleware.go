package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware handles Cross-Origin Resource Sharing, including preflight
// requests for routes that only register their real method.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", ClientIDHeader},
		ExposedHeaders:   []string{ClientIDHeader},
		AllowCredentials: true,
	})
	return c.Handler
}
