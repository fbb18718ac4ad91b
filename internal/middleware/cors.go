package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"autoapi/internal/config"
)

// corsPolicy is a CORSConfig with its header values precomputed.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	methods     string
	headers     string
	expose      string
	maxAge      string
}

func newCORSPolicy(cfg config.CORSConfig) corsPolicy {
	p := corsPolicy{
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		expose:  strings.Join(cfg.ExposeHeaders, ", "),
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[origin] = struct{}{}
		}
	}
	// Browsers reject a wildcard origin on credentialed requests.
	p.credentials = cfg.AllowCredentials && !p.anyOrigin
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS adds Cross-Origin Resource Sharing headers for allowed origins and
// answers preflight requests without reaching the API handlers.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := policy.allows(origin)
			h := w.Header()
			if allowed {
				if policy.anyOrigin {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					if !slices.Contains(h.Values("Vary"), "Origin") {
						h.Add("Vary", "Origin")
					}
				}
				if policy.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if policy.expose != "" {
					h.Set("Access-Control-Expose-Headers", policy.expose)
				}
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			if allowed {
				if policy.methods != "" {
					h.Set("Access-Control-Allow-Methods", policy.methods)
				}
				if policy.headers != "" {
					h.Set("Access-Control-Allow-Headers", policy.headers)
				}
				if policy.maxAge != "" {
					h.Set("Access-Control-Max-Age", policy.maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
