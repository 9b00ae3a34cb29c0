// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthNoPasswordConfiguredIsAnonymous(t *testing.T) {
	a := New("")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	p, err := a.Auth(r)
	if err != nil {
		t.Fatalf("Auth: %v", err)
	}
	if p.Name != "player" {
		t.Errorf("Name = %q, want player", p.Name)
	}
}

func TestAuthRejectsWrongPassword(t *testing.T) {
	a := New("s3cret")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetBasicAuth("player", "wrong")
	if _, err := a.Auth(r); err == nil {
		t.Error("expected auth failure, got nil")
	}
}

func TestAuthAcceptsCorrectPassword(t *testing.T) {
	a := New("s3cret")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetBasicAuth("p1", "s3cret")
	p, err := a.Auth(r)
	if err != nil {
		t.Fatalf("Auth: %v", err)
	}
	if p.Name != "p1" {
		t.Errorf("Name = %q, want p1", p.Name)
	}
}

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	a := New("s3cret")
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
