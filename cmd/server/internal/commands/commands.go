package commands

import (
	"net/http"
	"strings"
	"time"

	connectcors "connectrpc.com/cors"
	"filippo.io/csrf"
	"github.com/rs/cors"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		// event streams clear their own write deadline
		WriteTimeout:   5 * time.Minute,
		IdleTimeout:    5 * time.Minute,
		MaxHeaderBytes: 8 * 1024, // 8KiB
	}
}

// isAPIRoute returns true if the path is an API route that needs CORS.
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/qyburn.v1.") ||
		strings.HasPrefix(path, "/api/")
}

// isRESTRoute returns true for the dashboard's JSON API, which browsers call
// with cookies and therefore also gets cross-origin request protection.
func isRESTRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// protectHandler wraps the application handler: API routes get CORS for the
// allowed origins, REST and non-API routes get CSRF protection that trusts
// those same origins.
func protectHandler(allowedOrigins []string, h http.Handler) (http.Handler, error) {
	protection := csrf.New()
	for _, origin := range allowedOrigins {
		if origin == "*" {
			continue
		}
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, err
		}
	}

	protected := protection.Handler(h)
	api := withCORS(allowedOrigins, h)
	rest := withCORS(allowedOrigins, protected)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case isRESTRoute(r.URL.Path):
			rest.ServeHTTP(w, r)
		case isAPIRoute(r.URL.Path):
			api.ServeHTTP(w, r)
		default:
			protected.ServeHTTP(w, r)
		}
	}), nil
}

// withCORS adds CORS support to a Connect HTTP handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: append(connectcors.AllowedMethods(), http.MethodPatch, http.MethodDelete, http.MethodPut),
		AllowedHeaders: append(connectcors.AllowedHeaders(), "Authorization"),
		ExposedHeaders: connectcors.ExposedHeaders(),
	})
	return middleware.Handler(h)
}
