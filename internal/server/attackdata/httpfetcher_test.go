package attackdata

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avalactf/avala/pkg/wire"
)

func TestHTTPFetcherFetchDecodesAttackData(t *testing.T) {
	want := wire.AttackData{Services: map[string]wire.ServiceData{
		"web": {Targets: map[string]wire.TargetData{"10.0.0.1": {Ticks: map[int][]string{1: {"a"}}}}},
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, time.Second)
	got, err := f.Fetch(t.Context())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	gh, _ := hashNormalized(got)
	wh, _ := hashNormalized(want)
	if gh != wh {
		t.Fatalf("fetched data does not match served data")
	}
}

func TestHTTPFetcherFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, time.Second)
	if _, err := f.Fetch(t.Context()); err == nil {
		t.Fatal("expected an error for a 503 response")
	}
}
