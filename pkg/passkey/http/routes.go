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
	"github.com/go-chi/chi/v5"
)

// MountChi mounts the passkey routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/auth", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/register/begin", h.BeginRegistration)
	r.Post("/register/complete", h.CompleteRegistration)
	r.Post("/signin/begin", h.BeginSignin)
	r.Post("/signin/complete", h.CompleteSignin)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/profile", h.Profile)
	})
}
