// Package tenant resolves which store a request is addressed to. Buyers
// reach a store through its subdomain or an explicit header; seller API
// keys scope the request directly.
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

var storeKey contextKey

// Resolver extracts the store identifier from incoming requests.
type Resolver struct {
	HeaderName   string
	RootDomain   string
	DefaultStore string
}

// NewResolver configures resolution by header first, subdomain second.
// An empty headerName falls back to "X-Store-ID".
func NewResolver(headerName, rootDomain, defaultStore string) *Resolver {
	if headerName == "" {
		headerName = "X-Store-ID"
	}
	return &Resolver{
		HeaderName:   headerName,
		RootDomain:   strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultStore: strings.TrimSpace(defaultStore),
	}
}

// Middleware injects the resolved store id into the request context.
// Requests that resolve nothing pass through unscoped; handlers that
// need a store reject them.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		storeID := r.Resolve(req)
		if storeID == "" {
			storeID = r.DefaultStore
		}
		if storeID != "" {
			ctx := WithTenant(req.Context(), storeID)
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.store_id", storeID))
			}
			req = req.WithContext(ctx)
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the store id from the configured header, or the
// request subdomain when no header is present.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if storeID := strings.TrimSpace(req.Header.Get(r.HeaderName)); storeID != "" {
		return storeID
	}
	host := hostWithoutPort(req.Host)
	if host == "" {
		return ""
	}
	return strings.TrimSpace(r.subdomainFromHost(host))
}

func (r *Resolver) subdomainFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if r.RootDomain != "" {
		if host == r.RootDomain {
			return ""
		}
		suffix := "." + r.RootDomain
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		host = strings.TrimSuffix(host, suffix)
	}
	parts := strings.Split(host, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx != -1 && hostport[1:idx] != "" {
			return hostport[1:idx]
		}
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	if idx := strings.Index(hostport, ":"); idx != -1 && strings.Count(hostport, ":") == 1 {
		return hostport[:idx]
	}
	return hostport
}

// WithTenant stores the store identifier inside the context.
func WithTenant(ctx context.Context, storeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeKey, storeID)
}

// FromContext extracts the store identifier from the context.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	storeID, ok := ctx.Value(storeKey).(string)
	if !ok || storeID == "" {
		return "", false
	}
	return storeID, true
}
