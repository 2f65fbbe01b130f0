package auth

import (
	"context"
	"net/http"
	"strings"
)

type subjectKey struct{}

// WithSubject stores the authenticated signer in context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the signer placed by the middleware, or "".
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}

// Middleware validates JWTs and puts the signer in the request context.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies auth to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Policy.RequiresSigner(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := ParseJWT(bearerToken(r.Header.Get("Authorization")), m.Secret)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cascade"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), claims.Subject)))
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
