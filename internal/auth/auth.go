// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth implements the single shared-secret HTTP Basic
// authentication the wire protocol uses: every request either presents
// the configured password, or (if none is configured) is treated as an
// already-authenticated anonymous player.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/avalactf/avala/pkg/log"
)

// Principal identifies the caller a request was authenticated as.
type Principal struct {
	Name string
}

type contextKey string

const principalKey contextKey = "principal"

// Authentication holds the configured shared secret, empty meaning
// authentication is disabled and every caller becomes the anonymous
// principal named "player".
type Authentication struct {
	Password string
}

// New builds an Authentication from the configured server password.
func New(password string) *Authentication {
	return &Authentication{Password: password}
}

// Auth authenticates r, returning the resolved principal.
func (a *Authentication) Auth(r *http.Request) (*Principal, error) {
	if a.Password == "" {
		return &Principal{Name: "player"}, nil
	}

	user, pass, ok := r.BasicAuth()
	if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(a.Password)) != 1 {
		return nil, http.ErrNoCookie
	}
	if user == "" {
		user = "player"
	}
	return &Principal{Name: user}, nil
}

// Middleware wraps h, rejecting unauthenticated requests with 401 and
// otherwise attaching the resolved Principal to the request context.
func (a *Authentication) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.Auth(r)
		if err != nil {
			log.Debugf("auth: rejected request from %s", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="avala"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext retrieves the Principal attached by Middleware.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
