// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

type contextKey string

const claimsContextKey contextKey = "passkey.claims"

// ClaimsFromContext returns the verified token claims attached by
// RequireAuth.
func ClaimsFromContext(ctx context.Context) (*passkey.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*passkey.Claims)
	return claims, ok
}

// RequireAuth verifies the Bearer token on incoming requests and
// attaches its claims to the request context. Requests without a valid
// token receive 401.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authentication required")
			return
		}

		claims, err := h.service.VerifyToken(token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
