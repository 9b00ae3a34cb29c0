package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avalactf/avala/internal/auth"
	"github.com/avalactf/avala/internal/server/intake"
	"github.com/avalactf/avala/pkg/wire"
	"github.com/gorilla/mux"
)

type fakeState struct{}

func (fakeState) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	return false, nil
}

type fakeSignal struct{ ch chan struct{} }

func (f fakeSignal) Wait() <-chan struct{} { return f.ch }

func newTestAPI() *API {
	h := &Handler{
		GameInfo: wire.GameInfo{FlagFormat: "FLAG{.*}"},
		State:    fakeState{},
		Intake:   &intake.Intake{},
		Ready:    fakeSignal{ch: make(chan struct{})},
	}
	return &API{Auth: auth.New(""), Handler: h}
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI()
	r := mux.NewRouter()
	api.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/connect/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGameEndpointReturnsConfiguredFlagFormat(t *testing.T) {
	api := newTestAPI()
	r := mux.NewRouter()
	api.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/connect/game", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got wire.GameInfo
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.FlagFormat != "FLAG{.*}" {
		t.Errorf("flag_format = %q, want %q", got.FlagFormat, "FLAG{.*}")
	}
}

func TestMetricsEndpointUnauthenticated(t *testing.T) {
	api := newTestAPI()
	api.Auth = auth.New("secret")
	r := mux.NewRouter()
	api.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (metrics should not require auth)", w.Code)
	}
}

func TestConnectHealthRequiresAuthWhenPasswordSet(t *testing.T) {
	api := newTestAPI()
	api.Auth = auth.New("secret")
	r := mux.NewRouter()
	api.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/connect/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
