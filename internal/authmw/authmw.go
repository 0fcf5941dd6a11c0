// Package authmw provides HTTP middleware that maps bearer tokens to analyst
// identities.
package authmw

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ctxKey struct{}

// Tokens maps a bearer token to the analyst it identifies.
type Tokens map[string]string

// ParseTokens reads "analyst:token" pairs separated by commas, e.g.
// "alice:tok1,bob:tok2". Whitespace around pairs is ignored.
func ParseTokens(s string) (Tokens, error) {
	out := make(Tokens)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		analyst, token, ok := strings.Cut(pair, ":")
		analyst, token = strings.TrimSpace(analyst), strings.TrimSpace(token)
		if !ok || analyst == "" || token == "" {
			return nil, fmt.Errorf("malformed analyst token pair %q, want analyst:token", redact(pair))
		}
		if _, dup := out[token]; dup {
			return nil, fmt.Errorf("token for %q is already assigned", analyst)
		}
		out[token] = analyst
	}
	if len(out) == 0 {
		return nil, errors.New("no analyst tokens configured")
	}
	return out, nil
}

// redact keeps the analyst part of a pair for error messages.
func redact(pair string) string {
	if analyst, _, ok := strings.Cut(pair, ":"); ok {
		return analyst + ":***"
	}
	return "***"
}

// Analysts returns middleware that requires a Bearer token from tokens and
// stores the matching analyst in the request context. Every configured token
// is compared in constant time.
func Analysts(tokens Tokens) func(http.Handler) http.Handler {
	type entry struct {
		token   []byte
		analyst string
	}
	entries := make([]entry, 0, len(tokens))
	for tok, who := range tokens {
		entries = append(entries, entry{token: []byte(tok), analyst: who})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
				return
			}

			got := []byte(auth[len("Bearer "):])

			analyst := ""
			for _, e := range entries {
				if subtle.ConstantTimeCompare(got, e.token) == 1 {
					analyst = e.analyst
				}
			}
			if analyst == "" {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAnalyst(r.Context(), analyst)))
		})
	}
}

// WithAnalyst returns ctx carrying analyst.
func WithAnalyst(ctx context.Context, analyst string) context.Context {
	return context.WithValue(ctx, ctxKey{}, analyst)
}

// AnalystFromContext returns the authenticated analyst, if any.
func AnalystFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok && v != ""
}
