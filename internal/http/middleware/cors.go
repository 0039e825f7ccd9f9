package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

const corsMaxAge = 10 * 60

// Methods and headers used by the processing API. Browsers hide response
// headers from scripts unless they are exposed.
var (
	corsMethods        = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsRequestHeaders = []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", RequestIDHeader}
	corsExposedHeaders = []string{"Location", "Retry-After", RequestIDHeader}
)

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool

	methods string
	headers string
	exposed string
	maxAge  string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	policy := corsPolicy{
		origins:     make(map[string]struct{}, len(cfg.AllowedOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     strings.Join(corsMethods, ", "),
		headers:     strings.Join(corsRequestHeaders, ", "),
		exposed:     strings.Join(corsExposedHeaders, ", "),
		maxAge:      strconv.Itoa(corsMaxAge),
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		switch origin {
		case "":
		case "*":
			policy.anyOrigin = true
		default:
			policy.origins[origin] = struct{}{}
		}
	}
	return policy
}

func (p corsPolicy) allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[strings.ToLower(origin)]
	return ok
}

// allowOriginValue reflects the origin unless a plain wildcard is enough.
// Browsers reject "*" on credentialed requests.
func (p corsPolicy) allowOriginValue(origin string) string {
	if p.anyOrigin && !p.credentials {
		return "*"
	}
	return origin
}

// CORS answers preflight requests from allowed origins and decorates their
// actual requests. Other origins pass through without CORS headers.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || !policy.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			header := w.Header()
			header.Add("Vary", "Origin")
			header.Set("Access-Control-Allow-Origin", policy.allowOriginValue(origin))
			if policy.credentials {
				header.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions {
				header.Set("Access-Control-Expose-Headers", policy.exposed)
				next.ServeHTTP(w, r)
				return
			}

			header.Add("Vary", "Access-Control-Request-Method")
			header.Add("Vary", "Access-Control-Request-Headers")
			header.Set("Access-Control-Allow-Methods", policy.methods)
			header.Set("Access-Control-Allow-Headers", policy.headers)
			header.Set("Access-Control-Max-Age", policy.maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
