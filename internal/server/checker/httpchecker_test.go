package checker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avalactf/avala/pkg/wire"
)

func TestHTTPCheckerSubmitDecodesResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Flags) != 2 {
			t.Fatalf("expected 2 flags, got %d", len(req.Flags))
		}
		resp := []wire.FlagSubmissionResponse{
			{Flag: req.Flags[0], Status: wire.StatusAccepted, Points: 10},
			{Flag: req.Flags[1], Status: wire.StatusRejected, Message: "stale"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	out, err := c.Submit(t.Context(), []string{"FLAG{a}", "FLAG{b}"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(out) != 2 || out[0].Status != wire.StatusAccepted || out[1].Status != wire.StatusRejected {
		t.Fatalf("unexpected responses: %+v", out)
	}
}

func TestHTTPCheckerSubmitNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.Submit(t.Context(), []string{"FLAG{a}"}); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestStreamHTTPCheckerSubmitMatchesFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode([]wire.FlagSubmissionResponse{
			{Flag: req.Flags[0], Status: wire.StatusAccepted},
		})
	}))
	defer srv.Close()

	c := NewStream(srv.URL, time.Second)
	resp, err := c.Submit(t.Context(), "FLAG{solo}")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Status != wire.StatusAccepted {
		t.Fatalf("expected accepted, got %s", resp.Status)
	}
	if err := c.Prepare(t.Context()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := c.Cleanup(t.Context()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestStreamHTTPCheckerSubmitNoMatchingResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]wire.FlagSubmissionResponse{{Flag: "FLAG{other}", Status: wire.StatusAccepted}})
	}))
	defer srv.Close()

	c := NewStream(srv.URL, time.Second)
	if _, err := c.Submit(t.Context(), "FLAG{solo}"); err == nil {
		t.Fatal("expected an error when no response matches the submitted flag")
	}
}
